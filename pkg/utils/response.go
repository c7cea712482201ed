package utils

import (
	"encoding/json"
	"log"
	"net/http"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// Envelope is the {success, message, data} shape used by the auth endpoints.
type Envelope struct {
	Success  bool   `json:"success"`
	Verified *bool  `json:"verified,omitempty"`
	Message  string `json:"message,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// RespondFailure 发送 success=false 的响应
func RespondFailure(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, Envelope{Success: false, Message: message})
}

// maxBodyBytes 覆盖 20MB 图片的 base64 编码。
const maxBodyBytes = 32 << 20

// DecodeJSON reads a size-limited JSON request body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}
