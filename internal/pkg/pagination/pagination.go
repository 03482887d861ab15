package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Query holds parsed pagination parameters.
type Query struct {
	Page  int
	Limit int
}

// FromContext extracts and clamps page and limit from the query string.
// "size" is accepted as an alias of "limit".
func FromContext(c *gin.Context) Query {
	raw := c.Query("limit")
	if raw == "" {
		raw = c.Query("size")
	}
	return Normalize(parseIntOr(c.Query("page"), DefaultPage), parseIntOr(raw, DefaultLimit))
}

func Normalize(page, limit int) Query {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Query{Page: page, Limit: limit}
}

func parseIntOr(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
