package paging

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestParse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	testCases := []struct {
		query      string
		wantLimit  int32
		wantOffset int32
		wantErr    bool
	}{
		{"", DefaultLimit, 0, false},
		{"?limit=10&offset=20", 10, 20, false},
		{"?limit=0", DefaultLimit, 0, false},
		{"?limit=100000", MaxLimit, 0, false},
		{"?limit=-1", 0, 0, true},
		{"?offset=abc", 0, 0, true},
	}
	for _, tc := range testCases {
		t.Run(tc.query, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", "/x"+tc.query, nil)
			limit, offset, err := Parse(c)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Parse err = %v, wantErr %v", err, tc.wantErr)
			}
			if limit != tc.wantLimit || offset != tc.wantOffset {
				t.Errorf("Parse = (%d, %d), want (%d, %d)", limit, offset, tc.wantLimit, tc.wantOffset)
			}
		})
	}
}
