package tool

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"jomra/internal/domain"
)

// SystemInfo reports host platform details.
type SystemInfo struct{}

func NewSystemInfo() *SystemInfo { return &SystemInfo{} }

func (*SystemInfo) Name() string                       { return "system_info" }
func (*SystemInfo) Description() string                { return "Get device info" }
func (*SystemInfo) Parameters() []domain.ToolParameter { return nil }

func (*SystemInfo) Execute(context.Context, map[string]any) (*domain.ToolResult, error) {
	host, _ := os.Hostname()
	info := map[string]any{
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
		"cpus":    runtime.NumCPU(),
		"version": runtime.Version(),
		"host":    host,
	}
	return &domain.ToolResult{
		Success: true,
		Text: fmt.Sprintf("Info: os=%s arch=%s cpus=%d go=%s host=%s",
			runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), runtime.Version(), host),
		Data: info,
	}, nil
}
