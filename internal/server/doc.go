/*
包 server 提供 HTTP 服务器生命周期管理：非阻塞启动、上下文驱动的运行与优雅关闭。

# 核心类型

  - Manager：持有 http.Server 与 net.Listener，提供 Start/Run/Shutdown。
  - Config：监听地址、读写超时与优雅关闭超时，可由 ConfigFor 从 config.ServerConfig 构造。

skillflow 同时运行 API 与 Metrics 两个 Manager，由 cmd/skillflow 以同一个信号上下文驱动。
*/
package server
