package model

// ChatRequest 是问答接口的请求体。
// SelectedFile 为空时在整个命名空间内检索，否则只命中指定文件的分块。
type ChatRequest struct {
	Query        string `json:"query"`
	SelectedFile string `json:"selected_file"`
}

// ChatResponse 是整答模式的响应体，Answer 为规范化后的 HTML 片段。
type ChatResponse struct {
	Answer string `json:"answer"`
}
