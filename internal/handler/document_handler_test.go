package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"docchat-go/internal/config"
	"docchat-go/internal/model"
)

type fakeDocumentService struct {
	gotNamespace string
	gotFileName  string
}

func (f *fakeDocumentService) Upload(ctx context.Context, namespace, fileName string, reader io.Reader, size int64, contentType string) (*model.Document, error) {
	f.gotNamespace = namespace
	f.gotFileName = fileName
	return &model.Document{FileName: fileName, Namespace: namespace}, nil
}

func (f *fakeDocumentService) List(namespace string) ([]model.Document, error) {
	return nil, nil
}

func (f *fakeDocumentService) Delete(ctx context.Context, namespace, fileName string) error {
	return nil
}

type fakeGuestService struct {
	createdToken string
	createCalls  int
	resetCalls   int
	touchCalls   int
	gotToken     string
}

func (f *fakeGuestService) CreateSession(ctx context.Context) (string, error) {
	f.createCalls++
	return f.createdToken, nil
}

func (f *fakeGuestService) TouchSession(ctx context.Context, sessionToken string) error {
	f.touchCalls++
	f.gotToken = sessionToken
	return nil
}

func (f *fakeGuestService) ResetSession(ctx context.Context, sessionToken string) error {
	f.resetCalls++
	f.gotToken = sessionToken
	return nil
}

func (f *fakeGuestService) Teardown(ctx context.Context, sessionToken string) error {
	return nil
}

func (f *fakeGuestService) StartJanitor(interval time.Duration) {}

func newDocumentRouter(docSvc *fakeDocumentService, guestSvc *fakeGuestService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	config.Conf.Guest.SessionTTLHours = 24
	r := gin.New()
	h := NewDocumentHandler(docSvc, guestSvc)
	r.POST("/documents/upload", h.Upload)
	return r
}

func multipartFile(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	buf := new(bytes.Buffer)
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile("file", "a.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("file content"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func uploadedCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == GuestCookieName {
			return cookie
		}
	}
	t.Fatalf("response does not set the %s cookie", GuestCookieName)
	return nil
}

// 没有访客 Cookie 的上传自动创建会话并通过 Cookie 下发令牌。
func TestUploadGuestWithoutCookieCreatesSession(t *testing.T) {
	docSvc := &fakeDocumentService{}
	guestSvc := &fakeGuestService{createdToken: "newtok"}
	r := newDocumentRouter(docSvc, guestSvc)

	body, contentType := multipartFile(t)
	req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, guestSvc.createCalls)
	require.Zero(t, guestSvc.resetCalls)
	require.Equal(t, "session_newtok", docSvc.gotNamespace)
	require.Equal(t, "a.pdf", docSvc.gotFileName)
	require.Equal(t, "newtok", uploadedCookie(t, w).Value)
}

// 携带已有访客 Cookie 的上传复用会话：先清空旧命名空间数据再入库。
func TestUploadGuestWithCookieResetsNamespace(t *testing.T) {
	docSvc := &fakeDocumentService{}
	guestSvc := &fakeGuestService{}
	r := newDocumentRouter(docSvc, guestSvc)

	body, contentType := multipartFile(t)
	req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(&http.Cookie{Name: GuestCookieName, Value: "tok123"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Zero(t, guestSvc.createCalls)
	require.Equal(t, 1, guestSvc.resetCalls)
	require.Equal(t, 1, guestSvc.touchCalls)
	require.Equal(t, "tok123", guestSvc.gotToken)
	require.Equal(t, "session_tok123", docSvc.gotNamespace)
	require.Equal(t, "tok123", uploadedCookie(t, w).Value)
}

// 登录用户的上传进入自己的命名空间，不触碰访客会话。
func TestUploadAuthenticatedUsesUserNamespace(t *testing.T) {
	docSvc := &fakeDocumentService{}
	guestSvc := &fakeGuestService{}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewDocumentHandler(docSvc, guestSvc)
	r.POST("/documents/upload", func(c *gin.Context) {
		c.Set("user", &model.User{ID: 7, Username: "alice"})
		h.Upload(c)
	})

	body, contentType := multipartFile(t)
	req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Zero(t, guestSvc.createCalls)
	require.Zero(t, guestSvc.resetCalls)
	require.Equal(t, "user_7", docSvc.gotNamespace)
}
