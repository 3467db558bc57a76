package ports

import "github.com/gin-gonic/gin"

type CaptureHTTPHandler interface {
	GetResults(c *gin.Context)
	ClearResults(c *gin.Context)
	ExportResults(c *gin.Context)
	ListInterfaces(c *gin.Context)
	StartCapture(c *gin.Context)
	StopCapture(c *gin.Context)
	GetStatus(c *gin.Context)
}

type ControlHTTPHandler interface {
	ApplySettings(c *gin.Context)
	StartStream(c *gin.Context)
	StopStream(c *gin.Context)
	SetStreamSettings(c *gin.Context)
	SetAutoApply(c *gin.Context)
}
