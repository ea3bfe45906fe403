package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"stampcard/internal/pkg/metrics"
	"stampcard/internal/service/loyalty/application"
	"stampcard/internal/service/loyalty/domain"
)

// Pinger 检查存储是否可用
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services 是 HTTP 层依赖的全部用例
type Services struct {
	Scan         *application.ScanService
	Business     *application.BusinessService
	Registration *application.RegistrationService
	Landing      *application.LandingService
	Client       *application.ClientService
	Health       Pinger
}

// LoyaltyHandler 封装了 loyalty 服务的 HTTP 处理器
type LoyaltyHandler struct {
	svc Services
	// publicBaseURL 为空时从请求头推断二维码中的地址
	publicBaseURL string
}

// NewLoyaltyHandler 创建一个新的 HTTP 处理器实例
func NewLoyaltyHandler(svc Services, publicBaseURL string) *LoyaltyHandler {
	return &LoyaltyHandler{svc: svc, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *LoyaltyHandler) RegisterRoutes(mux *http.ServeMux) {
	public := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, metrics.Instrument(pattern, fn))
	}
	private := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, metrics.Instrument(pattern, RequireAuth(h.svc.Business, fn)))
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	public("GET /api/health", h.handleHealth)
	public("GET /api/health/db", h.handleHealthDB)

	public("POST /api/auth/register", h.handleRegister)
	public("POST /api/auth/login", h.handleLogin)
	private("GET /api/auth/me", h.handleMe)

	private("GET /api/restaurant/program", h.handleGetProgram)
	private("POST /api/restaurant/program", h.handleUpdateProgram)
	private("GET /api/restaurant/settings", h.handleGetSettings)
	private("POST /api/restaurant/expiration", h.handleUpdateExpiration)
	private("GET /api/restaurant/landing", h.handleGetLanding)
	private("POST /api/restaurant/landing", h.handleSaveLanding)
	private("GET /api/restaurant/history", h.handleHistory)

	private("GET /api/business/clients", h.handleListClients)
	private("GET /api/business/clients.csv", h.handleExportClients)
	private("GET /api/client/{id}", h.handleClientDetail)

	private("GET /api/scan/preview", h.handlePreview)
	private("POST /api/scan/add-stamp", h.handleAddStamp)
	private("POST /api/scan/redeem", h.handleRedeem)

	public("GET /api/public/landing/{slug}", h.handlePublicLanding)
	public("POST /api/public/register", h.handlePublicRegister)
	public("GET /api/public/{slug}", h.handlePublicBusiness)
	public("GET /api/qr/{clientId}", h.handleQR)
}

// ── 健康检查 ──

func (h *LoyaltyHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *LoyaltyHandler) handleHealthDB(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Health.Ping(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "db": "up"})
}

// ── 商户账号 ──

func (h *LoyaltyHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req application.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.svc.Business.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req application.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.svc.Business.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Business.Me(r.Context(), BusinessIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ── 计划配置 ──

func (h *LoyaltyHandler) handleGetProgram(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Business.GetProgram(r.Context(), BusinessIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleUpdateProgram(w http.ResponseWriter, r *http.Request) {
	var req application.ProgramUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.svc.Business.UpdateProgram(r.Context(), BusinessIDFrom(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Business.GetSettings(r.Context(), BusinessIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleUpdateExpiration(w http.ResponseWriter, r *http.Request) {
	var req application.ExpirationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.svc.Business.UpdateExpiration(r.Context(), BusinessIDFrom(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ── 注册页 ──

func (h *LoyaltyHandler) handleGetLanding(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Landing.GetLanding(r.Context(), BusinessIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleSaveLanding(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Config json.RawMessage `json:"config"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, domain.ErrInvalidLanding)
		return
	}
	// config 必须是 JSON 对象
	var cfg domain.LandingConfig
	if !bytes.HasPrefix(bytes.TrimSpace(body.Config), []byte("{")) || json.Unmarshal(body.Config, &cfg) != nil {
		writeError(w, r, domain.ErrInvalidLanding)
		return
	}
	if err := h.svc.Landing.SaveLanding(r.Context(), BusinessIDFrom(r.Context()), cfg); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *LoyaltyHandler) handlePublicLanding(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Landing.PublicLanding(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ── 历史与顾客 ──

func (h *LoyaltyHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	resp, err := h.svc.Client.History(r.Context(), BusinessIDFrom(r.Context()), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleListClients(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Client.ListClients(r.Context(), BusinessIDFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleExportClients(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.svc.Client.ExportClientsCSV(r.Context(), BusinessIDFrom(r.Context()), &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="clientes.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *LoyaltyHandler) handleClientDetail(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Client.ClientDetail(r.Context(), BusinessIDFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleQR(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Client.QR(r.Context(), r.PathValue("clientId"), h.baseURL(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// baseURL 优先使用配置的公开地址，否则按反向代理头推断
func (h *LoyaltyHandler) baseURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		proto = "http"
		if r.TLS != nil {
			proto = "https"
		}
	}
	return proto + "://" + r.Host
}

// ── 扫码 ──

type scanBody struct {
	Client   string          `json:"client"`
	ClientID string          `json:"clientId"`
	Count    json.RawMessage `json:"count"`
}

func (h *LoyaltyHandler) handlePreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := q.Get("client")
	if clientID == "" {
		clientID = q.Get("clientId")
	}
	resp, err := h.svc.Scan.Preview(r.Context(), BusinessIDFrom(r.Context()), clientID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleAddStamp(w http.ResponseWriter, r *http.Request) {
	req, err := h.scanRequest(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.svc.Scan.AddStamp(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	req, err := h.scanRequest(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.svc.Scan.Redeem(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) scanRequest(w http.ResponseWriter, r *http.Request) (application.ScanRequest, error) {
	var body scanBody
	if err := decodeJSON(w, r, &body); err != nil {
		return application.ScanRequest{}, err
	}
	clientID := body.Client
	if clientID == "" {
		clientID = body.ClientID
	}
	if clientID == "" {
		return application.ScanRequest{}, domain.ErrMissingClientID
	}
	count, err := parseCount(body.Count)
	if err != nil {
		return application.ScanRequest{}, err
	}
	return application.ScanRequest{BusinessID: BusinessIDFrom(r.Context()), ClientID: clientID, Count: count}, nil
}

// ── 公开注册 ──

func (h *LoyaltyHandler) handlePublicBusiness(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Registration.PublicBusiness(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LoyaltyHandler) handlePublicRegister(w http.ResponseWriter, r *http.Request) {
	var req application.PublicRegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.svc.Registration.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
