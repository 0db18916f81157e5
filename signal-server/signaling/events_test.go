package signaling

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInt64String_AcceptsNumbersAndStrings(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Int64String
		wantErr bool
	}{
		{"plain number", `{"fileSize":10240}`, 10240, false},
		{"numeric string", `{"fileSize":"10240"}`, 10240, false},
		{"64-bit value", `{"fileSize":"9007199254740993"}`, 9007199254740993, false},
		{"negative", `{"fileSize":-1}`, -1, false},
		{"garbage", `{"fileSize":"ten"}`, 0, true},
		{"float", `{"fileSize":10.5}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req UploadInitRequest
			err := json.Unmarshal([]byte(tt.in), &req)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.FileSize)
		})
	}
}

func TestInt64String_MarshalsAsString(t *testing.T) {
	out, err := json.Marshal(&FileMeta{FileName: "a.txt", FileSize: 10240, FileType: "text/plain"})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"fileSize":"10240"`, "sizes must survive JavaScript number precision")
}
