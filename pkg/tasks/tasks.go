// Package tasks 定义了通过消息队列分发的异步任务结构。
package tasks

import "encoding/json"

// DocumentProcessTask 描述一个等待解析入库的文档。
type DocumentProcessTask struct {
	ObjectName string `json:"object_name"` // 对象存储中的文件名
	FileName   string `json:"file_name"`   // 用户上传时的原始文件名
	Namespace  string `json:"namespace"`   // 向量存储中的归属命名空间
}

// Encode 将任务序列化为消息体。
func (t DocumentProcessTask) Encode() ([]byte, error) {
	return json.Marshal(t)
}

// DecodeDocumentProcessTask 从消息体还原任务。
func DecodeDocumentProcessTask(data []byte) (DocumentProcessTask, error) {
	var t DocumentProcessTask
	err := json.Unmarshal(data, &t)
	return t, err
}
