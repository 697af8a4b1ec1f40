package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestProbe(t *testing.T) {
	t.Run("端点可达", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/json/version" {
				http.NotFound(w, r)
				return
			}
			w.Write([]byte(`{"Browser": "Chrome/126.0"}`))
		}))
		defer srv.Close()

		endpoint := strings.TrimPrefix(srv.URL, "http://")
		if err := Probe(endpoint, 2*time.Second); err != nil {
			t.Errorf("Probe(%s) error = %v", endpoint, err)
		}
	})

	t.Run("端点返回非200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		endpoint := strings.TrimPrefix(srv.URL, "http://")
		if err := Probe(endpoint, 2*time.Second); err == nil {
			t.Error("非200响应应报错")
		}
	})

	t.Run("端点不可达", func(t *testing.T) {
		// 保留地址段,连接必然失败
		if err := Probe("127.0.0.1:1", 500*time.Millisecond); err == nil {
			t.Error("不可达端点应报错")
		}
	})
}

// fakeCDPServer 假浏览器调试端点: 应答/json/version与websocket命令,并记录收到的命令名
type fakeCDPServer struct {
	srv *httptest.Server

	mu      sync.Mutex
	methods []string
}

func newFakeCDPServer(t *testing.T) *fakeCDPServer {
	t.Helper()
	f := &fakeCDPServer{}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"Browser": "FakeChrome/1.0", "webSocketDebuggerUrl": "ws://%s/devtools/browser/fake"}`, r.Host)
	})
	mux.HandleFunc("/devtools/browser/fake", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg struct {
				ID     int    `json:"id"`
				Method string `json:"method"`
			}
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			f.record(msg.Method)

			result := map[string]interface{}{}
			if msg.Method == "Browser.getVersion" {
				result["product"] = "FakeChrome/1.0"
			}
			reply, _ := json.Marshal(map[string]interface{}{"id": msg.ID, "result": result})
			if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		}
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCDPServer) endpoint() string {
	return strings.TrimPrefix(f.srv.URL, "http://")
}

func (f *fakeCDPServer) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods = append(f.methods, method)
}

func (f *fakeCDPServer) received(method string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.methods {
		if m == method {
			return true
		}
	}
	return false
}

func TestSession_CloseKeepsBrowserAlive(t *testing.T) {
	// 浏览器是用户已经开着的进程,断开会话只能撤走控制连接
	fake := newFakeCDPServer(t)
	monitor := NewResourceMonitor(ResourceMonitorConfig{MaxTabsLimit: 2})

	sess, err := Connect(context.Background(), fake.endpoint(), monitor)
	if err != nil {
		t.Fatalf("Connect error = %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}

	// 给断开路径留出把任何在途命令写到连接上的时间
	time.Sleep(100 * time.Millisecond)
	if fake.received("Browser.close") {
		t.Errorf("Close向浏览器发送了Browser.close, 收到的命令: %v", fake.methods)
	}
}

func TestSession_Version(t *testing.T) {
	fake := newFakeCDPServer(t)
	monitor := NewResourceMonitor(ResourceMonitorConfig{MaxTabsLimit: 2})

	sess, err := Connect(context.Background(), fake.endpoint(), monitor)
	if err != nil {
		t.Fatalf("Connect error = %v", err)
	}
	defer sess.Close()

	product, err := sess.Version()
	if err != nil {
		t.Fatalf("Version error = %v", err)
	}
	if product != "FakeChrome/1.0" {
		t.Errorf("Version() = %q, 期望 FakeChrome/1.0", product)
	}
}

func TestResourceMonitor_MaxTabs(t *testing.T) {
	t.Run("上限受MaxTabsLimit约束", func(t *testing.T) {
		m := NewResourceMonitor(ResourceMonitorConfig{
			MaxTabsLimit:        3,
			TabMemoryUsage:      1, // 每标签页1字节,内存永远不是瓶颈
			SafetyReserveMemory: 1,
		})
		if got := m.MaxTabs(); got != 3 {
			t.Errorf("MaxTabs() = %d, 期望受绝对上限约束为 3", got)
		}
	})

	t.Run("内存紧张时至少保留1个标签页", func(t *testing.T) {
		m := NewResourceMonitor(ResourceMonitorConfig{
			MaxTabsLimit:        8,
			TabMemoryUsage:      1 << 50, // 单标签页预估超过任何机器的内存
			SafetyReserveMemory: 1,
		})
		if got := m.MaxTabs(); got != 1 {
			t.Errorf("MaxTabs() = %d, 期望下限 1", got)
		}
	})

	t.Run("结果在缓存窗口内不变", func(t *testing.T) {
		m := NewResourceMonitor(ResourceMonitorConfig{MaxTabsLimit: 4})
		first := m.MaxTabs()
		second := m.MaxTabs()
		if first != second {
			t.Errorf("缓存窗口内两次结果不同: %d != %d", first, second)
		}
	})
}
