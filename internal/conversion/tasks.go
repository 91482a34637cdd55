package conversion

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskConversionUpload = "conversion.upload"

// UploadPayload carries one journaled conversion through the task queue.
type UploadPayload struct {
	UploadID       string `json:"uploadId"`
	LeadID         int64  `json:"leadId"`
	ConversionType string `json:"conversionType"`
}

func NewUploadTask(payload UploadPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConversionUpload, data), nil
}

func ParseUploadPayload(task *asynq.Task) (UploadPayload, error) {
	var payload UploadPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return UploadPayload{}, err
	}
	return payload, nil
}
