// Package ingest reads raw chat export directories and archives them in a
// local SQLite database for the extraction worker.
package ingest

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chatgraph/chatgraph/internal/util"
	"github.com/chatgraph/chatgraph/pkg/common"
	"github.com/chatgraph/chatgraph/pkg/logger"
)

const (
	rawTextTypeName  = "文本"
	rawTimeLayout    = "2006-01-02 15:04:05"
	usersFileName    = "users.json"
	mediaMessageType = "media"
)

// Export is the decoded content of one chat export directory: profiles
// keyed by user id and message histories keyed by contact id.
type Export struct {
	Profiles map[string]common.UserProfile
	Messages map[string][]common.ChatMessage
}

// rawUser mirrors one entry of a users.json file. The nested ExtraBuf
// keys are the export tool's original (Chinese) field names.
type rawUser struct {
	Nickname    string   `json:"nickname"`
	Remark      string   `json:"remark"`
	Account     string   `json:"account"`
	LabelIDList []int64  `json:"LabelIDList"`
	ExtraBuf    rawExtra `json:"ExtraBuf"`
}

type rawExtra struct {
	Gender    int    `json:"性别[1男2女]"`
	Signature string `json:"个性签名"`
	Country   string `json:"国"`
	Province  string `json:"省"`
	City      string `json:"市"`
	Mobile    string `json:"手机号"`
}

// rawMessage mirrors one entry of a message file. Msg is a raw value
// because media messages carry objects instead of strings.
type rawMessage struct {
	TypeName   string          `json:"type_name"`
	IsSender   int             `json:"is_sender"`
	Talker     string          `json:"talker"`
	RoomName   string          `json:"room_name"`
	Msg        json.RawMessage `json:"msg"`
	CreateTime string          `json:"CreateTime"`
}

// ReadExportDir decodes a chat export tree. Each first-level directory is
// one contact; group chats (gh_ and @ prefixes) and business accounts
// (@openim suffix) are skipped. Unreadable files are logged and skipped
// so a single corrupt file cannot abort an ingest run.
func ReadExportDir(root string) (*Export, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read export directory %s: %w", root, err)
	}

	export := &Export{
		Profiles: make(map[string]common.UserProfile),
		Messages: make(map[string][]common.ChatMessage),
	}

	for _, entry := range entries {
		if !entry.IsDir() || skipContactDir(entry.Name()) {
			continue
		}
		if err := readContactDir(export, root, entry.Name()); err != nil {
			return nil, err
		}
	}
	return export, nil
}

func skipContactDir(name string) bool {
	return strings.HasPrefix(name, "gh_") ||
		strings.HasPrefix(name, "@") ||
		strings.HasSuffix(name, "@openim")
}

func readContactDir(export *Export, root, contactID string) error {
	dir := filepath.Join(root, contactID)
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("Skipping unreadable export file", "path", path, "error", err)
			return nil
		}

		if d.Name() == usersFileName {
			readUsersFile(export, path, data)
			return nil
		}

		var rawMessages []rawMessage
		if err := json.Unmarshal(data, &rawMessages); err != nil {
			logger.Warn("Skipping malformed message file", "path", path, "error", err)
			return nil
		}
		for _, raw := range rawMessages {
			export.Messages[contactID] = append(export.Messages[contactID], convertMessage(raw))
		}
		return nil
	})
}

// readUsersFile merges one users.json into the profile set. The first
// occurrence of a user id wins, matching the dedup rule of the export
// tool.
func readUsersFile(export *Export, path string, data []byte) {
	var rawUsers map[string]rawUser
	if err := json.Unmarshal(data, &rawUsers); err != nil {
		logger.Warn("Skipping malformed users file", "path", path, "error", err)
		return
	}

	for id, raw := range rawUsers {
		if _, ok := export.Profiles[id]; ok {
			continue
		}
		export.Profiles[id] = common.UserProfile{
			ID:        id,
			Nickname:  util.SanitizeText(raw.Nickname),
			Remark:    util.SanitizeText(raw.Remark),
			Account:   raw.Account,
			LabelIDs:  raw.LabelIDList,
			Gender:    raw.ExtraBuf.Gender,
			Signature: util.SanitizeText(raw.ExtraBuf.Signature),
			Country:   strings.TrimSpace(raw.ExtraBuf.Country),
			Province:  strings.TrimSpace(raw.ExtraBuf.Province),
			City:      strings.TrimSpace(raw.ExtraBuf.City),
			Mobile:    raw.ExtraBuf.Mobile,
		}
	}
}

func convertMessage(raw rawMessage) common.ChatMessage {
	msgType := raw.TypeName
	if msgType == rawTextTypeName {
		msgType = common.MessageTypeText
	} else if msgType == "" {
		msgType = mediaMessageType
	}

	var body string
	if len(raw.Msg) > 0 {
		// Text bodies are JSON strings; media bodies are objects and
		// kept verbatim for the archive.
		if err := json.Unmarshal(raw.Msg, &body); err != nil {
			body = string(raw.Msg)
		}
	}

	msg := common.ChatMessage{
		SenderID: raw.Talker,
		RoomID:   raw.RoomName,
		Type:     msgType,
		Body:     util.SanitizeText(body),
	}
	if ts, err := time.Parse(rawTimeLayout, raw.CreateTime); err == nil {
		msg.Timestamp = ts
	}
	return msg
}
