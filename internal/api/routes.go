package api

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/ws", s.hub.HandleWebSocket)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/status", s.getStatus)

	v1.POST("/requests", s.createRequest)
	v1.POST("/requests/direct", s.createDirectRequest)
	v1.GET("/requests", s.listRequests)
	v1.GET("/requests/:id", s.getRequest)
	v1.DELETE("/requests/:id", s.deleteRequest)
	v1.POST("/requests/:id/approve", s.approveRequest)
	v1.POST("/requests/:id/deny", s.denyRequest)
	v1.POST("/requests/:id/cancel", s.cancelRequest)
	v1.POST("/requests/:id/retry", s.retryRequest)
	v1.GET("/requests/:id/candidates", s.getCandidates)
	v1.POST("/requests/:id/select", s.selectCandidate)
	v1.GET("/requests/:id/history", s.getRequestHistory)
	v1.GET("/requests/:id/events", s.getRequestEvents)

	v1.GET("/tasks", s.listTasks)
	v1.POST("/tasks/:id/run", s.runTask)
}
