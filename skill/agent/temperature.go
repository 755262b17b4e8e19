package agent

import (
	"strconv"
	"strings"
)

// parseTemperature 解析温度配置，非法或越界时返回 0（模型默认值）
func parseTemperature(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	t, err := strconv.ParseFloat(raw, 32)
	if err != nil || t < 0 || t > 2 {
		return 0
	}
	return t
}
