package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *WebServer) aboutPage(c *gin.Context) {
	data := s.getBaseTemplateData(c, "About Me", "about")
	s.renderTemplate(c, http.StatusOK, "about.html", data)
}

func (s *WebServer) hirePage(c *gin.Context) {
	data := s.getBaseTemplateData(c, "Hire Me", "hire")
	s.renderTemplate(c, http.StatusOK, "hire.html", data)
}
