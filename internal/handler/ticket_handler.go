package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Abrham-amplitude/solana-ticket/internal/models"
	"github.com/Abrham-amplitude/solana-ticket/internal/services"
	"github.com/Abrham-amplitude/solana-ticket/utils"
)

// CreateValueTicket 创建 Value-Ticket：把价格转入新的托管账户
func (h *Handler) CreateValueTicket(c *gin.Context) {
	var req struct {
		keyRequest
		Price    uint64 `json:"price"` // lamports
		PriceSOL string `json:"price_sol"`
	}
	if err := bind(c, &req); err != nil {
		h.fail(c, err, nil)
		return
	}
	owner, err := req.keypair()
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	price, err := lamportsOrSOL(req.Price, req.PriceSOL)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	ticket, err := h.engine.CreateValueTicket(c.Request.Context(), owner, price)
	h.reply(c, http.StatusCreated, ticket, err)
}

func (h *Handler) VerifyValueTicket(c *gin.Context) {
	addr, err := address(c.Param("address"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	st, err := h.engine.VerifyValueTicket(c.Request.Context(), addr)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ticket_address": st.TicketAddress,
		"valid":          st.Valid,
		"balance":        st.Balance,
		"balance_sol":    utils.FormatSOL(st.Balance),
		"reason":         st.Reason,
	})
}

// UseValueTicket 持票人领取托管账户全部余额
func (h *Handler) UseValueTicket(c *gin.Context) {
	addr, err := address(c.Param("address"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	var req keyRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err, nil)
		return
	}
	holder, err := req.keypair()
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	res, err := h.engine.UseValueTicket(c.Request.Context(), addr, holder)
	h.reply(c, http.StatusOK, res, err)
}

// CreateAssetTicket 铸造供应量为 1 的票据 NFT
func (h *Handler) CreateAssetTicket(c *gin.Context) {
	var req struct {
		keyRequest
		services.TicketSpec
		PriceSOL string `json:"price_sol"`
	}
	if err := bind(c, &req); err != nil {
		h.fail(c, err, nil)
		return
	}
	owner, err := req.keypair()
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	spec := req.TicketSpec
	if spec.Price, err = lamportsOrSOL(spec.Price, req.PriceSOL); err != nil {
		h.fail(c, err, nil)
		return
	}
	ticket, err := h.engine.CreateAssetTicket(c.Request.Context(), owner, spec)
	h.reply(c, http.StatusCreated, ticket, err)
}

func (h *Handler) GetAssetTicket(c *gin.Context) {
	mint, err := address(c.Param("mint"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	info, err := h.engine.GetAssetTicket(c.Request.Context(), mint)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, info)
}

// UseAssetTicket 销毁票据（burn 1）
func (h *Handler) UseAssetTicket(c *gin.Context) {
	mint, err := address(c.Param("mint"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	var req keyRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err, nil)
		return
	}
	owner, err := req.keypair()
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	res, err := h.engine.UseAssetTicket(c.Request.Context(), owner, mint)
	h.reply(c, http.StatusOK, res, err)
}

// TicketHistory 以 JSON 数组流式返回交易历史。
// 第一条之前出错时返回普通错误响应；之后出错时以一个错误对象结束数组。
func (h *Handler) TicketHistory(c *gin.Context) {
	mint, err := address(c.Param("mint"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	started := false
	enc := json.NewEncoder(c.Writer)
	// 写失败说明客户端已断开，记录后直接返回
	write := func(sep string, v any) bool {
		if _, err := c.Writer.WriteString(sep); err != nil {
			h.log.Warn("history %s: write: %v", mint, err)
			return false
		}
		if v == nil {
			return true
		}
		if err := enc.Encode(v); err != nil {
			h.log.Warn("history %s: write: %v", mint, err)
			return false
		}
		return true
	}
	for entry, err := range h.engine.GetTicketHistory(c.Request.Context(), mint) {
		if err != nil {
			if !started {
				h.fail(c, err, nil)
				return
			}
			h.log.Warn("history %s cut short: %v", mint, err)
			if !write(",", gin.H{"error": err.Error(), "kind": services.Kind(err)}) {
				return
			}
			break
		}
		sep := ","
		if !started {
			c.Header("Content-Type", "application/json; charset=utf-8")
			c.Status(http.StatusOK)
			sep = "["
			started = true
		}
		if !write(sep, entry) {
			return
		}
		c.Writer.Flush()
	}
	if !started {
		c.JSON(http.StatusOK, []services.HistoryEntry{})
		return
	}
	write("]", nil)
}

// ListTickets 登记表查询：?kind=&owner=&status=&limit=
func (h *Handler) ListTickets(c *gin.Context) {
	f := services.TicketFilter{
		Kind:   models.TicketKind(c.Query("kind")),
		Owner:  c.Query("owner"),
		Status: models.TicketStatus(c.Query("status")),
	}
	switch f.Kind {
	case "", models.KindValue, models.KindAsset:
	default:
		h.fail(c, badRequest("unknown kind "+string(f.Kind)), nil)
		return
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			h.fail(c, badRequest("bad limit "+s), nil)
			return
		}
		f.Limit = n
	}
	list, err := h.engine.Store().ListTickets(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	out := make([]gin.H, 0, len(list))
	for _, t := range list {
		out = append(out, gin.H{
			"kind":             t.Kind,
			"address":          t.Address,
			"owner":            t.Owner,
			"token_account":    t.TokenAccount,
			"price":            t.Price,
			"status":           t.Status,
			"create_signature": t.CreateSignature,
			"use_signature":    t.UseSignature,
			"used_at":          t.UsedAt,
			"created_at":       t.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"tickets": out, "count": len(out)})
}
