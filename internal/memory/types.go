// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	pkgerrors "memory-outbox/pkg/errors"
)

// Item 一条待投递的 memory 记录；JSON 字段名与远端 memory 服务一致
type Item struct {
	Content   string                 `json:"content" validate:"required"`
	Type      string                 `json:"type,omitempty"` // short-term | long-term | knowledge，可为空
	UserID    string                 `json:"userId,omitempty"`
	SessionID string                 `json:"sessionId,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Keywords  []string               `json:"keywords,omitempty" validate:"omitempty,dive,required"`
	MissionID string                 `json:"missionId,omitempty"`
	ExpiresAt *time.Time             `json:"expiresAt,omitempty"`
	// Version 由版本计数器在发送时分配，同一安装内严格递增
	Version int64 `json:"version"`
}

// Stored 远端确认写入后返回的记录
type Stored struct {
	ID        string     `json:"id"`
	Type      string     `json:"type,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

var validate = validator.New()

// Validate 校验必填字段；失败时错误 Is pkgerrors.ErrInvalidArg
func (it *Item) Validate() error {
	if err := validate.Struct(it); err != nil {
		return pkgerrors.Mark(pkgerrors.ErrInvalidArg, formatValidationError(err))
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
