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

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

func apiBaseURL() string {
	if u := os.Getenv("MEMQ_API_URL"); u != "" {
		return u
	}
	return "http://127.0.0.1:7070"
}

func newClient() *resty.Client {
	return resty.New().
		SetBaseURL(apiBaseURL()).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
}

type sendRequest struct {
	Content   string   `json:"content"`
	Type      string   `json:"type"`
	UserID    string   `json:"userId,omitempty"`
	SessionID string   `json:"sessionId,omitempty"`
	MissionID string   `json:"missionId,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`
}

type sendResponse struct {
	Status  string `json:"status"`
	Version int64  `json:"version"`
}

type apiError struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func errorFrom(op string, resp *resty.Response) error {
	var e apiError
	if err := json.Unmarshal(resp.Body(), &e); err == nil && e.Error != "" {
		if e.Kind != "" {
			return fmt.Errorf("%s: %s (%s)", op, e.Error, e.Kind)
		}
		return fmt.Errorf("%s: %s", op, e.Error)
	}
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode(), resp.String())
}

func sendMemory(req sendRequest) (*sendResponse, error) {
	var out sendResponse
	resp, err := newClient().R().
		SetBody(req).
		SetResult(&out).
		Post("/api/memory")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, errorFrom("POST /api/memory", resp)
	}
	return &out, nil
}

func flushOutbox() (int, error) {
	var out struct {
		Delivered int `json:"delivered"`
	}
	resp, err := newClient().R().
		SetResult(&out).
		Post("/api/outbox/flush")
	if err != nil {
		return 0, err
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, errorFrom("POST /api/outbox/flush", resp)
	}
	return out.Delivered, nil
}

func reconnect() (bool, error) {
	var out struct {
		Scheduled bool `json:"scheduled"`
	}
	resp, err := newClient().R().
		SetResult(&out).
		Post("/api/outbox/reconnect")
	if err != nil {
		return false, err
	}
	switch resp.StatusCode() {
	case http.StatusAccepted:
		return out.Scheduled, nil
	case http.StatusOK:
		// 守护进程未启用后台重放时同步执行
		return true, nil
	default:
		return false, errorFrom("POST /api/outbox/reconnect", resp)
	}
}

func getStatus() (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/outbox/status")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, errorFrom("GET /api/outbox/status", resp)
	}
	return out, nil
}

func getHealth() (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/health")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, errorFrom("GET /api/health", resp)
	}
	return out, nil
}

func prettyJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
