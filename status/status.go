package status

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

type SystemInfo struct {
	OS             string `json:"os"`
	PythonVersion  string `json:"python_version"`
	ComfyUIVersion string `json:"comfyui_version"`
}

type Device struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Index          int    `json:"index"`
	VramTotal      int64  `json:"vram_total"`
	VramFree       int64  `json:"vram_free"`
	TorchVramTotal int64  `json:"torch_vram_total"`
	TorchVramFree  int64  `json:"torch_vram_free"`
}

type StatsResponse struct {
	System  SystemInfo `json:"system"`
	Devices []Device   `json:"devices"`
}

// Client talks to the administrative endpoints of a ComfyUI server.
type Client struct {
	BaseURL        string
	HTTPClient     *http.Client
	CacheFor       time.Duration
	mu             sync.Mutex
	cachedStats    *StatsResponse
	statsCacheTime time.Time
}

// NewClient creates a new status client for the server at host:port
func NewClient(host string, port int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := host
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		BaseURL:  fmt.Sprintf("%s:%d", strings.TrimRight(base, "/"), port),
		CacheFor: 3 * time.Second,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) doRequest(endpoint string, target interface{}) error {
	url := fmt.Sprintf("%s%s", c.BaseURL, endpoint)
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}

	return nil
}

func (c *Client) post(endpoint string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %v", err)
	}

	url := fmt.Sprintf("%s%s", c.BaseURL, endpoint)
	req, err := http.NewRequest("POST", url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code: %d. Body: %s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// GetStats fetches the current system stats, cached for CacheFor
func (c *Client) GetStats() (*StatsResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cachedStats != nil && time.Since(c.statsCacheTime) < c.CacheFor {
		return c.cachedStats, nil
	}
	var stats StatsResponse
	if err := c.doRequest("/system_stats", &stats); err != nil {
		return nil, err
	}
	c.cachedStats = &stats
	c.statsCacheTime = time.Now()
	return &stats, nil
}

// Devices returns just the compute devices
func (c *Client) Devices() ([]Device, error) {
	stats, err := c.GetStats()
	if err != nil {
		return nil, err
	}
	return stats.Devices, nil
}

// IsRunning reports whether the server answers at all
func (c *Client) IsRunning() bool {
	_, err := c.GetStats()
	return err == nil
}

// Free asks the server to unload models and release memory.
func (c *Client) Free() error {
	return c.post("/free", map[string]bool{"unload_models": true, "free_memory": true})
}

// Interrupt stops whatever prompt the server is executing.
func (c *Client) Interrupt() error {
	return c.post("/interrupt", struct{}{})
}

// formatDevice formats a single device's information
func formatDevice(d Device) string {
	name := d.Name
	if i := strings.Index(name, " : "); i > 0 {
		name = name[:i]
	}
	return fmt.Sprintf("%s [%s | VRAM: %d/%d MiB free]", name, d.Type, d.VramFree>>20, d.VramTotal>>20)
}

// GetFormattedStatus returns one line per device, suitable for a terminal
func (c *Client) GetFormattedStatus() string {
	stats, err := c.GetStats()
	if err != nil {
		return fmt.Sprintf("Error fetching status: %v", err)
	}
	if len(stats.Devices) == 0 {
		return "Devices: none reported"
	}

	lines := make([]string, 0, len(stats.Devices))
	for _, d := range stats.Devices {
		lines = append(lines, " • "+formatDevice(d))
	}
	return strings.Join(lines, "\n")
}
