package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"docchat-go/internal/model"
	"docchat-go/internal/service"
	"docchat-go/pkg/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理问答请求：整答、HTTP 流式与 WebSocket。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler 实例。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Chat 处理整答模式的问答请求。
func (h *ChatHandler) Chat(c *gin.Context) {
	namespace, err := resolveNamespace(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "请先登录或创建访客会话"})
		return
	}

	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	answer := h.chatService.AnswerQuery(c.Request.Context(), namespace, req)
	c.JSON(http.StatusOK, model.ChatResponse{Answer: answer})
}

// ChatStream 以 HTTP 分块响应流式返回答案片段。
func (h *ChatHandler) ChatStream(c *gin.Context) {
	namespace, err := resolveNamespace(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "请先登录或创建访客会话"})
		return
	}

	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Transfer-Encoding", "chunked")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "流式响应不可用"})
		return
	}

	err = h.chatService.StreamAnswer(c.Request.Context(), namespace, req, func(fragment string) error {
		if _, err := c.Writer.WriteString(fragment); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// 客户端中断连接，无法再写入任何内容
		log.Warnf("ChatStream: 流式下发中断, %v", err)
	}
}

// HandleWS 处理 WebSocket 问答连接。
// 每条入站消息是一个 JSON 问答请求，片段以 {"chunk":"..."} 帧下发，
// 回答结束后发送一条 completion 通知帧。
func (h *ChatHandler) HandleWS(c *gin.Context) {
	namespace, err := resolveNamespace(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "请先登录或创建访客会话"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立, namespace: %s", namespace)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var req model.ChatRequest
		if err := json.Unmarshal(message, &req); err != nil {
			// 非 JSON 消息按纯文本问题处理
			req = model.ChatRequest{Query: string(message)}
		}

		err = h.chatService.StreamAnswer(c.Request.Context(), namespace, req, func(fragment string) error {
			payload, _ := json.Marshal(map[string]string{"chunk": fragment})
			return conn.WriteMessage(websocket.TextMessage, payload)
		})
		if err != nil {
			log.Errorf("处理流式响应失败: %v", err)
			break
		}

		sendCompletion(conn)
	}
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(conn *websocket.Conn) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
	b, _ := json.Marshal(notif)
	_ = conn.WriteMessage(websocket.TextMessage, b)
}
