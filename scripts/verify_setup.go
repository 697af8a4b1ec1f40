package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"
)

// 环境自检: 确认Go环境与CDP浏览器端点可用
// 用法: go run scripts/verify_setup.go [host:port]
func main() {
	fmt.Println("==============================================")
	fmt.Println("  qianli 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	fmt.Printf("✅ Go版本: %s\n", runtime.Version())
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	endpoint := "127.0.0.1:9222"
	if len(os.Args) > 1 {
		endpoint = os.Args[1]
	}

	// 检查CDP调试端点
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/json/version", endpoint))
	if err != nil {
		fmt.Printf("❌ CDP浏览器不可达(%s): %v\n", endpoint, err)
		fmt.Println("   请先启动: chrome --remote-debugging-port=9222 --user-data-dir=~/.qianli-chrome")
		allOK = false
	} else {
		defer resp.Body.Close()
		var info struct {
			Browser              string `json:"Browser"`
			WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			fmt.Printf("⚠️  调试端点响应异常: %v\n", err)
		} else {
			fmt.Printf("✅ CDP浏览器可达: %s\n", info.Browser)
			fmt.Printf("   控制地址: %s\n", info.WebSocketDebuggerURL)
		}
	}

	fmt.Println()
	if allOK {
		fmt.Println("✅ 环境验证通过")
	} else {
		fmt.Println("❌ 环境验证未通过,请按提示修复")
		os.Exit(1)
	}
}
