// Package catalog は蔵書・著者・貸出の業務ロジックと HTTP ハンドラーを提供します。
//
// 利用者管理（/api/users）のハンドラーもここに置き、users.Service に委譲します。
package catalog

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/yourusername/bookflow/internal/apperr"
	"github.com/yourusername/bookflow/internal/storage"
)

// parseID は ID が UUID 形式かを検証します。
func parseID(id, message string) error {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return apperr.Validation(message)
	}
	return nil
}

// decodePatch は許可リストを確認してから fields を dst（ポインタ項目の構造体）に詰め替えます。
func decodePatch(fields map[string]any, allowed []string, dst any) error {
	if len(fields) == 0 {
		return apperr.Validation("Request body must include at least one field")
	}
	for key := range fields {
		if !contains(allowed, key) {
			sorted := append([]string(nil), allowed...)
			sort.Strings(sorted)
			return apperr.Validationf("Error with the request body. Please include only valid fields: %s", strings.Join(sorted, ", "))
		}
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return apperr.Validation("Request body must be a JSON object")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.Validation("One or more fields have an invalid type")
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// notFound は storage.ErrNotFound を NotFound エラーに置き換えます。
func notFound(err error, message string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(message)
	}
	return err
}

func trimmed(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}
