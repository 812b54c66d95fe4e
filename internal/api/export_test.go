package api

// SetPortalURL replaces how portal base URLs are built, so tests can point
// the metadata lookup at a plain HTTP server.
func (s *Server) SetPortalURL(f func(domain string) string) {
	s.portalURL = f
}
