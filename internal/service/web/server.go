// Package web отдаёт дашборд: HTML-страницу с графиками и JSON API поверх dashboard.Service.
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/oda/internal/domain"
	"github.com/vladislavdragonenkov/oda/internal/service/dashboard"
)

const (
	defaultPageSize  = 50
	defaultRateLimit = 20
	defaultRateBurst = 40
)

//go:embed templates/*.html
var templatesFS embed.FS

// Dashboard: операции сервиса дашборда, которые нужны веб-слою.
type Dashboard interface {
	Report(ctx context.Context, filter domain.Filter) (domain.Report, error)
	Sidebar(ctx context.Context) (dashboard.Sidebar, error)
	Records(ctx context.Context, filter domain.Filter, limit, offset int) (dashboard.RecordsPage, error)
}

// Config задаёт параметры веб-сервера.
type Config struct {
	// RateLimit: запросов в секунду на IP; 0 или меньше отключает ограничение.
	RateLimit float64
	RateBurst int
	// PageSize: строк сырых данных на странице дашборда.
	PageSize int
}

// DefaultConfig возвращает параметры по умолчанию.
func DefaultConfig() Config {
	return Config{
		RateLimit: defaultRateLimit,
		RateBurst: defaultRateBurst,
		PageSize:  defaultPageSize,
	}
}

// Server: gin-роутер дашборда.
type Server struct {
	dashboard Dashboard
	logger    *log.Entry
	engine    *gin.Engine
	pageSize  int
}

// NewServer собирает роутер, middleware и шаблоны.
func NewServer(d Dashboard, cfg Config, logger *log.Entry) (*Server, error) {
	if d == nil {
		return nil, fmt.Errorf("dashboard service is required")
	}
	if logger == nil {
		logger = log.WithField("component", "web")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}

	tmpl, err := template.New("").Funcs(templateFuncs()).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	var limiter *RateLimiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = int(cfg.RateLimit)
		}
		if burst <= 0 {
			burst = 1
		}
		limiter = NewRateLimiter(cfg.RateLimit, burst)
	}

	engine := gin.New()
	engine.SetHTMLTemplate(tmpl)
	engine.Use(
		RequestID(),
		AccessLog(logger),
		Recovery(logger),
		RateLimit(limiter, logger),
	)

	s := &Server{
		dashboard: d,
		logger:    logger,
		engine:    engine,
		pageSize:  cfg.PageSize,
	}
	s.routes()
	return s, nil
}

// Handler возвращает http.Handler для http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/", s.index)

	api := s.engine.Group("/api/v1")
	api.GET("/report", s.apiReport)
	api.GET("/sidebar", s.apiSidebar)
	api.GET("/records", s.apiRecords)
}

func (s *Server) apiReport(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	report, err := s.dashboard.Report(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, report)
}

func (s *Server) apiSidebar(c *gin.Context) {
	sidebar, err := s.dashboard.Sidebar(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, sidebar)
}

func (s *Server) apiRecords(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	limit, err := queryInt(c, "limit", s.pageSize)
	if err != nil {
		s.respondError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.respondError(c, err)
		return
	}

	page, err := s.dashboard.Records(c.Request.Context(), filter, limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, page)
}

// pageData: всё, что нужно шаблону dashboard.html.
type pageData struct {
	Title    string
	Start    string
	End      string
	Status   domain.OrderStatus
	Sidebar  dashboard.Sidebar
	Report   domain.Report
	Records  dashboard.RecordsPage
	Charts   chartData
	PrevPage string
	NextPage string
}

// errorData: данные шаблона error.html.
type errorData struct {
	Title   string
	Code    int
	Message string
}

func (s *Server) index(c *gin.Context) {
	ctx := c.Request.Context()

	filter, err := parseFilter(c)
	if err != nil {
		s.renderError(c, err)
		return
	}

	sidebar, err := s.dashboard.Sidebar(ctx)
	if err != nil {
		s.renderError(c, err)
		return
	}
	if filter.Start.IsZero() {
		filter.Start = sidebar.Bounds.Min
	}
	if filter.End.IsZero() {
		filter.End = sidebar.Bounds.Max
	}

	report, err := s.dashboard.Report(ctx, filter)
	if err != nil {
		s.renderError(c, err)
		return
	}

	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.renderError(c, err)
		return
	}
	records, err := s.dashboard.Records(ctx, filter, s.pageSize, offset)
	if err != nil {
		s.renderError(c, err)
		return
	}

	data := pageData{
		Title:   "Order Data Analysis",
		Start:   formatDate(filter.Start),
		End:     formatDate(filter.End),
		Status:  report.Status,
		Sidebar: sidebar,
		Report:  report,
		Records: records,
		Charts:  buildCharts(report),
	}
	if records.Offset > 0 {
		data.PrevPage = pageLink(data, maxInt(records.Offset-records.Limit, 0))
	}
	if records.Offset+records.Limit < records.Total {
		data.NextPage = pageLink(data, records.Offset+records.Limit)
	}

	c.HTML(http.StatusOK, "dashboard.html", data)
}

func (s *Server) renderError(c *gin.Context, err error) {
	status, _, message := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("request_id", requestIDFrom(c)).Error("page render failed")
	}
	c.HTML(status, "error.html", errorData{
		Title:   "Order Data Analysis",
		Code:    status,
		Message: message,
	})
}

func pageLink(data pageData, offset int) string {
	query := url.Values{}
	query.Set("start", data.Start)
	query.Set("end", data.End)
	query.Set("status", string(data.Status))
	query.Set("offset", strconv.Itoa(offset))
	return "/?" + query.Encode()
}

// parseFilter читает start, end (YYYY-MM-DD) и status из query.
func parseFilter(c *gin.Context) (domain.Filter, error) {
	start, err := queryDate(c, "start")
	if err != nil {
		return domain.Filter{}, err
	}
	end, err := queryDate(c, "end")
	if err != nil {
		return domain.Filter{}, err
	}
	return domain.NewFilter(start, end, domain.OrderStatus(c.Query("status"))), nil
}

func queryDate(c *gin.Context, name string) (time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(domain.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", errBadParam, name)
	}
	return t, nil
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadParam, name)
	}
	return v, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
