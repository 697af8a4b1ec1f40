package main

import (
	"fmt"
	"strings"
)

// ValidateSearchFlags 验证搜索子命令的参数组合
func ValidateSearchFlags(text string, limit int, timeoutSecs int) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("搜索关键词不能为空")
	}

	if limit < 1 || limit > 100 {
		return fmt.Errorf("结果数上限必须在1-100之间,当前值: %d", limit)
	}

	if timeoutSecs < 5 || timeoutSecs > 300 {
		return fmt.Errorf("来源超时必须在5-300秒之间,当前值: %d", timeoutSecs)
	}

	return nil
}
