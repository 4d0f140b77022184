package handler

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	"github.com/Abrham-amplitude/solana-ticket/internal/keys"
	"github.com/Abrham-amplitude/solana-ticket/internal/middleware"
	"github.com/Abrham-amplitude/solana-ticket/internal/services"
	"github.com/Abrham-amplitude/solana-ticket/utils"
)

// DefaultWarmup 启动后等待多久才报告就绪
const DefaultWarmup = 5 * time.Second

type Handler struct {
	engine *services.Engine
	log    *utils.Logger

	startTime time.Time
	warmup    time.Duration

	airdropLimit gin.HandlerFunc
	metrics      http.Handler
	trusted      []*net.IPNet
}

type Option func(*Handler)

// WithAirdropLimit guards the faucet route, usually with a redis limiter.
func WithAirdropLimit(mw gin.HandlerFunc) Option {
	return func(h *Handler) { h.airdropLimit = mw }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

func WithWarmup(d time.Duration) Option {
	return func(h *Handler) { h.warmup = d }
}

// WithTrustedNets opens local-only routes to these networks too.
func WithTrustedNets(nets ...*net.IPNet) Option {
	return func(h *Handler) { h.trusted = nets }
}

func New(engine *services.Engine, log *utils.Logger, opts ...Option) *Handler {
	if log == nil {
		log = utils.DefaultLogger
	}
	h := &Handler{
		engine:    engine,
		log:       log.With("http"),
		startTime: time.Now(),
		warmup:    DefaultWarmup,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readiness)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics))
	}

	local := middleware.LocalOnly(h.trusted...)

	w := r.Group("/wallets")
	w.POST("", local, h.CreateWallet)
	w.POST("/convert", local, h.ConvertKey)
	w.GET("/:address/balance", h.GetBalance)
	w.POST("/transfer", local, h.Transfer)
	airdrop := []gin.HandlerFunc{local}
	if h.airdropLimit != nil {
		airdrop = append(airdrop, h.airdropLimit)
	}
	w.POST("/airdrop", append(airdrop, h.Airdrop)...)

	t := r.Group("/tickets")
	t.GET("", h.ListTickets)
	t.POST("/value", local, h.CreateValueTicket)
	t.GET("/value/:address", h.VerifyValueTicket)
	t.POST("/value/:address/use", local, h.UseValueTicket)
	t.POST("/asset", local, h.CreateAssetTicket)
	t.GET("/asset/:mint", h.GetAssetTicket)
	t.POST("/asset/:mint/use", local, h.UseAssetTicket)
	t.GET("/asset/:mint/history", h.TicketHistory)
}

// keyRequest 请求中携带的私钥
type keyRequest struct {
	Secret   string `json:"secret"`
	Encoding string `json:"encoding"` // hex（默认）或 base58
}

func (k keyRequest) keypair() (keys.Keypair, error) {
	enc := keys.Hex
	if k.Encoding != "" {
		var err error
		if enc, err = keys.ParseEncoding(k.Encoding); err != nil {
			return keys.Keypair{}, badRequest(err.Error())
		}
	}
	return keys.Import(strings.TrimSpace(k.Secret), enc)
}

// lamportsOrSOL 支持 lamports 整数或 SOL 十进制字符串二选一
func lamportsOrSOL(lamports uint64, sol string) (uint64, error) {
	if sol == "" {
		return lamports, nil
	}
	if lamports != 0 {
		return 0, badRequest("give either lamports or sol, not both")
	}
	v, err := utils.ParseSOL(sol)
	if err != nil {
		return 0, badRequest(err.Error())
	}
	return v, nil
}

func address(s string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(strings.TrimSpace(s))
	if err != nil {
		return solana.PublicKey{}, badRequest("bad address " + s + ": " + err.Error())
	}
	return pk, nil
}

func badRequest(msg string) error {
	return fmt.Errorf("%w: %s", services.ErrInvalidRequest, msg)
}

// statusOf 错误类别到 HTTP 状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, keys.ErrInvalidKeyMaterial),
		errors.Is(err, keys.ErrDecode),
		errors.Is(err, services.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, services.ErrInvalidTicket), errors.Is(err, services.ErrHistoryConsumed):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConfirmationTimeout):
		return http.StatusAccepted
	case errors.Is(err, services.ErrSubmissionFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// fail 写错误响应；partial 是确认超时时已提交的结果
func (h *Handler) fail(c *gin.Context, err error, partial any) {
	status := statusOf(err)
	body := gin.H{"error": err.Error(), "kind": services.Kind(err)}
	if partial != nil {
		body["result"] = partial
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, body)
}

// reply 写成功结果；确认超时时把已提交的结果连同错误一起返回
func (h *Handler) reply(c *gin.Context, status int, res any, err error) {
	switch {
	case err == nil:
		c.JSON(status, res)
	case errors.Is(err, services.ErrConfirmationTimeout):
		h.fail(c, err, res)
	default:
		h.fail(c, err, nil)
	}
}

// bind 解析 JSON 请求体
func bind(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return badRequest("invalid request: " + err.Error())
	}
	return nil
}
