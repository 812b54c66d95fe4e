package api

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/brainless/csvexplorer/internal/fetch"
	"github.com/sirupsen/logrus"
)

var (
	datasetPagePattern = regexp.MustCompile(`dataset/([a-z0-9\-]+)`)
	datasetIDPattern   = regexp.MustCompile(`^[a-z0-9\-]+$`)
)

type proxyRequest struct {
	URL string `json:"url"`
}

// proxyCSVHandler fetches a CSV from a trusted host on behalf of a client
// that cannot reach it directly.
func (s *Server) proxyCSVHandler(w http.ResponseWriter, r *http.Request) {
	var req proxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "URL is required")
		return
	}

	if strings.Contains(req.URL, "data.healthcare.gov/dataset/") {
		if m := datasetPagePattern.FindStringSubmatch(req.URL); m != nil {
			suggested := "/api/healthcare/dataset/" + m[1]
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":        "This is a dataset page, not a CSV file.",
				"hint":         fmt.Sprintf("Use %s to fetch metadata and find CSV URLs", suggested),
				"suggestedUrl": suggested,
			})
			return
		}
	}

	if !s.isTrustedURL(req.URL) {
		writeError(w, http.StatusBadRequest, "Invalid URL or domain not whitelisted")
		return
	}

	logger := s.logger.WithField("url", req.URL)
	logger.Debug("Proxy fetching")

	upstreamReq, err := http.NewRequestWithContext(r.Context(), http.MethodGet, req.URL, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid URL or domain not whitelisted")
		return
	}
	upstreamReq.Header.Set("User-Agent", ProxyUserAgent)

	resp, err := s.upstream.Do(upstreamReq)
	if err != nil {
		logger.WithError(err).Warn("Proxy fetch failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
			"type":  "Unknown",
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		writeJSON(w, resp.StatusCode, map[string]any{
			"error":      fmt.Sprintf("Remote server returned %d", resp.StatusCode),
			"status":     resp.StatusCode,
			"statusText": http.StatusText(resp.StatusCode),
			"url":        req.URL,
		})
		return
	}

	body, err := s.readUpstream(resp.Body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": fmt.Sprintf("failed to read upstream body: %v", err),
			"type":  "Unknown",
		})
		return
	}

	text := string(body)
	if strings.HasPrefix(strings.TrimSpace(text), "<") {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":       "Response is HTML, not CSV data",
			"hint":        "The URL may be a dataset page (HTML) instead of a direct CSV file",
			"contentType": resp.Header.Get("Content-Type"),
			"firstChars":  firstChars(text, 100),
		})
		return
	}

	logger.WithField("bytes", len(body)).Info("Proxy success")
	contentType := "text/csv"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && params["charset"] != "" {
		contentType += "; charset=" + params["charset"]
	}
	w.Header().Set("Content-Type", contentType)
	for _, h := range []string{"ETag", "Last-Modified"} {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// isTrustedURL accepts http(s) URLs whose host is under a trusted domain.
func (s *Server) isTrustedURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return fetch.HostMatches(raw, s.config.TrustedDomains)
}

func firstChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back up to a rune boundary.
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

var (
	pageTitlePattern = regexp.MustCompile(`(?i)<title[^>]*>([^<]+)</title>`)
	csvLinkPattern   = regexp.MustCompile(`(?i)https://[^"'<>\s]+\.csv(?:\?[^"'<>\s]*)?`)
)

// HealthcareDataset is what can be scraped from a dataset landing page.
type HealthcareDataset struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	CSVURLs []string `json:"csvUrls"`
	APIURLs []string `json:"apiUrls"`
}

// healthcareDatasetHandler fetches a data.healthcare.gov dataset page and
// lists the CSV and API links found in it.
func (s *Server) healthcareDatasetHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !datasetIDPattern.MatchString(id) {
		writeError(w, http.StatusBadRequest, "Invalid dataset id")
		return
	}

	pageURL := s.config.HealthcareBaseURL + "/dataset/" + id
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, pageURL, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	req.Header.Set("User-Agent", fetch.DefaultUserAgent)

	resp, err := s.upstream.Do(req)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"dataset": id}).WithError(err).Warn("Healthcare page fetch failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		writeError(w, http.StatusNotFound, "Dataset not found")
		return
	}

	html, err := s.readUpstream(resp.Body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ExtractHealthcareDataset(string(html), id, s.config.HealthcareBaseURL))
}

// ExtractHealthcareDataset pulls the title, CSV links and API links out of a
// dataset page. Links are de-duplicated in first-seen order.
func ExtractHealthcareDataset(html, id, baseURL string) HealthcareDataset {
	ds := HealthcareDataset{ID: id, CSVURLs: []string{}, APIURLs: []string{}}
	if m := pageTitlePattern.FindStringSubmatch(html); m != nil {
		ds.Title = strings.TrimSpace(m[1])
	}
	ds.CSVURLs = unique(csvLinkPattern.FindAllString(html, -1))

	apiPattern := regexp.MustCompile(regexp.QuoteMeta(baseURL) + `/api/[^"'<>\s]+`)
	ds.APIURLs = unique(apiPattern.FindAllString(html, -1))
	return ds
}

func unique(in []string) []string {
	out := []string{}
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

var socrataIDPattern = regexp.MustCompile(`^[A-Za-z0-9\-_]+$`)

// socrataHandler passes through the package_show metadata of a dataset on a
// trusted portal.
func (s *Server) socrataHandler(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")
	id := r.URL.Query().Get("id")
	if domain == "" || id == "" {
		writeError(w, http.StatusBadRequest, "domain and id required")
		return
	}
	if !socrataIDPattern.MatchString(id) {
		writeError(w, http.StatusBadRequest, "Invalid dataset id")
		return
	}

	base := s.portalURL(domain)
	if strings.ContainsAny(domain, "/?#@") || !s.isTrustedURL(base) {
		writeError(w, http.StatusBadRequest, "Invalid URL or domain not whitelisted")
		return
	}

	apiURL := base + "/api/3/action/package_show?id=" + url.QueryEscape(id)
	logger := s.logger.WithFields(logrus.Fields{"domain": domain, "dataset": id})
	logger.Debug("Querying portal metadata")

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, apiURL, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	req.Header.Set("User-Agent", ProxyUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.upstream.Do(req)
	if err != nil {
		logger.WithError(err).Warn("Portal metadata fetch failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer resp.Body.Close()

	body, err := s.readUpstream(resp.Body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var data json.RawMessage
	if err := json.Unmarshal(body, &data); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("invalid JSON from portal: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) registerProxyRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/proxy/csv", s.proxyCSVHandler)
	mux.HandleFunc("GET /api/healthcare/dataset/{id}", s.healthcareDatasetHandler)
	mux.HandleFunc("GET /api/socrata", s.socrataHandler)
}
