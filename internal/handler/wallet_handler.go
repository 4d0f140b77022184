package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Abrham-amplitude/solana-ticket/internal/keys"
	"github.com/Abrham-amplitude/solana-ticket/utils"
)

// DefaultAirdrop 未指定金额时申请 1 SOL
const DefaultAirdrop = utils.LamportsPerSOL

// CreateWallet 生成新钱包，私钥只在本地接口返回
func (h *Handler) CreateWallet(c *gin.Context) {
	k := keys.Generate()
	c.JSON(http.StatusCreated, gin.H{
		"address":       k.PublicAddress().String(),
		"secret_hex":    keys.Export(k, keys.Hex),
		"secret_base58": keys.Export(k, keys.Base58),
	})
}

// ConvertKey hex 与 base58 私钥互转
func (h *Handler) ConvertKey(c *gin.Context) {
	var req struct {
		Secret string `json:"secret" binding:"required"`
		From   string `json:"from" binding:"required"`
		To     string `json:"to" binding:"required"`
	}
	if err := bind(c, &req); err != nil {
		h.fail(c, err, nil)
		return
	}
	from, err := keys.ParseEncoding(req.From)
	if err != nil {
		h.fail(c, badRequest(err.Error()), nil)
		return
	}
	to, err := keys.ParseEncoding(req.To)
	if err != nil {
		h.fail(c, badRequest(err.Error()), nil)
		return
	}
	out, k, err := keys.Convert(req.Secret, from, to)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":  k.PublicAddress().String(),
		"secret":   out,
		"encoding": to.String(),
	})
}

func (h *Handler) GetBalance(c *gin.Context) {
	addr, err := address(c.Param("address"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	bal, err := h.engine.Balance(c.Request.Context(), addr)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":  addr.String(),
		"lamports": bal,
		"sol":      utils.FormatSOL(bal),
	})
}

func (h *Handler) Transfer(c *gin.Context) {
	var req struct {
		keyRequest
		To       string `json:"to" binding:"required"`
		Lamports uint64 `json:"lamports"`
		SOL      string `json:"sol"`
	}
	if err := bind(c, &req); err != nil {
		h.fail(c, err, nil)
		return
	}
	from, err := req.keypair()
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	to, err := address(req.To)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	amount, err := lamportsOrSOL(req.Lamports, req.SOL)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	res, err := h.engine.Transfer(c.Request.Context(), from, to, amount)
	h.reply(c, http.StatusOK, res, err)
}

// Airdrop 测试网水龙头，单次申请不重试
func (h *Handler) Airdrop(c *gin.Context) {
	var req struct {
		Address  string `json:"address" binding:"required"`
		Lamports uint64 `json:"lamports"`
		SOL      string `json:"sol"`
	}
	if err := bind(c, &req); err != nil {
		h.fail(c, err, nil)
		return
	}
	addr, err := address(req.Address)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	amount, err := lamportsOrSOL(req.Lamports, req.SOL)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	if amount == 0 {
		amount = DefaultAirdrop
	}
	sig, err := h.engine.Airdrop(c.Request.Context(), addr, amount)
	res := gin.H{"address": addr.String(), "lamports": amount, "transaction_id": sig.String()}
	h.reply(c, http.StatusOK, res, err)
}
