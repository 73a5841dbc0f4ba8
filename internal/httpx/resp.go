package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Response is the {code, message, data} envelope of every API reply
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// OK sends data with code 0
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: CodeSuccess, Message: "success", Data: data})
}

// Created sends data with HTTP 201
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Code: CodeSuccess, Message: "success", Data: data})
}

// FailErr sends an AppError. The internal error is logged, not returned.
func FailErr(c *gin.Context, err *AppError) {
	if err.Err != nil {
		entry := logrus.WithFields(logrus.Fields{
			"code":   err.Code,
			"method": c.Request.Method,
			"path":   c.FullPath(),
		})
		if err.HTTPStatus >= http.StatusInternalServerError {
			entry.WithError(err.Err).Error(err.Message)
		} else {
			entry.WithError(err.Err).Info(err.Message)
		}
	}
	c.AbortWithStatusJSON(err.HTTPStatus, Response{Code: err.Code, Message: err.Message, Data: err.Data})
}

// Fail maps err with FromError and sends it
func Fail(c *gin.Context, err error) {
	FailErr(c, FromError(err))
}

// ListData is the data of a list reply
type ListData struct {
	Items any   `json:"items"`
	Total int64 `json:"total"`
}

// OKItems sends a list
func OKItems(c *gin.Context, items any, total int64) {
	OK(c, ListData{Items: items, Total: total})
}
