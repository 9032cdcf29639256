package blanks

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type blankRequest struct {
	Text  string   `json:"text" binding:"required"`
	Words []string `json:"words" binding:"required,min=1"`
}

// Handler は POST /api/blanks のハンドラーです。
func Handler(c *gin.Context) {
	var req blankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "text と words を JSON で送ってください",
		})
		return
	}

	modified, positions := Blank(req.Text, req.Words)
	c.JSON(http.StatusOK, gin.H{
		"text":           modified,
		"blankPositions": positions,
	})
}
