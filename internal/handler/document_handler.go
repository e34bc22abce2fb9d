package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"docchat-go/internal/config"
	"docchat-go/internal/service"
	"docchat-go/pkg/log"
)

// DocumentHandler 负责处理文档上传、列表与删除的 API 请求。
type DocumentHandler struct {
	docService   service.DocumentService
	guestService service.GuestService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService, guestService service.GuestService) *DocumentHandler {
	return &DocumentHandler{docService: docService, guestService: guestService}
}

// Upload 处理文档上传请求，文件解析与入库在后台异步完成。
// 未登录的请求自动签发（或复用）访客会话，无需事先调用会话接口。
func (h *DocumentHandler) Upload(c *gin.Context) {
	namespace, err := h.uploadNamespace(c)
	if err != nil {
		log.Errorf("Upload: 准备访客会话失败, %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建访客会话失败"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求中缺少文件"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无法读取上传的文件"})
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	doc, err := h.docService.Upload(c.Request.Context(), namespace, fileHeader.Filename, file, fileHeader.Size, contentType)
	if err != nil {
		log.Errorf("Upload: failed for %s, error: %v", fileHeader.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "文档上传失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "文档已上传，正在后台处理",
		"data":    doc,
	})
}

// uploadNamespace 返回上传的目标命名空间。
// 登录用户直接用自己的命名空间；访客复用或新建 guest_session 会话，
// 复用时先清空旧命名空间的数据再入库，并通过 Cookie 续发会话令牌。
func (h *DocumentHandler) uploadNamespace(c *gin.Context) (string, error) {
	if user, ok := currentUser(c); ok {
		return service.UserNamespace(user.ID), nil
	}

	ctx := c.Request.Context()
	sessionToken := guestToken(c)
	if sessionToken == "" {
		created, err := h.guestService.CreateSession(ctx)
		if err != nil {
			return "", err
		}
		sessionToken = created
	} else {
		if err := h.guestService.ResetSession(ctx, sessionToken); err != nil {
			// 旧数据清理失败不阻塞本次上传
			log.Errorf("Upload: 重置访客会话数据失败, %v", err)
		}
		if err := h.guestService.TouchSession(ctx, sessionToken); err != nil {
			return "", err
		}
	}

	c.SetCookie(GuestCookieName, sessionToken, config.Conf.Guest.SessionTTLHours*3600, "/", "", false, true)
	return service.GuestNamespace(sessionToken), nil
}

// List 返回当前身份命名空间下的全部文档。
func (h *DocumentHandler) List(c *gin.Context) {
	namespace, err := resolveNamespace(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "请先登录或创建访客会话"})
		return
	}

	docs, err := h.docService.List(namespace)
	if err != nil {
		log.Error("List: failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取文档列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    docs,
	})
}

// Delete 删除指定文件名的文档及其索引分块。
func (h *DocumentHandler) Delete(c *gin.Context) {
	namespace, err := resolveNamespace(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "请先登录或创建访客会话"})
		return
	}

	fileName := c.Param("filename")
	if fileName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少文件名"})
		return
	}

	if err := h.docService.Delete(c.Request.Context(), namespace, fileName); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
			return
		}
		log.Errorf("Delete: failed for %s, error: %v", fileName, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除文档失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "文档已删除", "data": nil})
}
