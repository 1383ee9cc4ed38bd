package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fundraising-escrow/internal/model"
	"fundraising-escrow/internal/service"
	"fundraising-escrow/internal/vault"
)

func roomKeyOf(c *gin.Context) model.Address {
	return vault.RoomKey(model.Address(c.Param("host")), c.Param("room_id"))
}

// bindOptional binds a JSON body when one is present.
func bindOptional(c *gin.Context, v any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(v)
}

func (s *Server) createPoolRoom(c *gin.Context) {
	var in service.CreatePoolRoomInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	in.Host = callerOf(c)
	room, err := s.svc.Rooms.CreatePoolRoom(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (s *Server) createAssetRoom(c *gin.Context) {
	var in service.CreateAssetRoomInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	in.Host = callerOf(c)
	room, err := s.svc.Rooms.CreateAssetRoom(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (s *Server) getRoom(c *gin.Context) {
	room, err := s.svc.Rooms.GetByKey(c.Request.Context(), roomKeyOf(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (s *Server) listRooms(c *gin.Context) {
	rooms, err := s.svc.Rooms.ListByHost(c.Request.Context(), model.Address(c.Query("host")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (s *Server) listEntries(c *gin.Context) {
	entries, err := s.svc.Rooms.Entries(c.Request.Context(), roomKeyOf(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) listEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	evs, err := s.svc.Rooms.Events(c.Request.Context(), roomKeyOf(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}

type joinRequest struct {
	Extras uint64 `json:"extras"`
}

func (s *Server) join(c *gin.Context) {
	var req joinRequest
	if err := bindOptional(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	entry, err := s.svc.Rooms.Join(c.Request.Context(), callerOf(c), roomKeyOf(c), req.Extras)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) closeJoining(c *gin.Context) {
	if err := s.svc.Rooms.CloseJoining(c.Request.Context(), callerOf(c), roomKeyOf(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type winnersRequest struct {
	Winners []model.Address `json:"winners" binding:"required"`
}

func (s *Server) declareWinners(c *gin.Context) {
	var req winnersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.svc.Rooms.DeclareWinners(c.Request.Context(), callerOf(c), roomKeyOf(c), req.Winners); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) end(c *gin.Context) {
	var in service.EndInput
	if err := bindOptional(c, &in); err != nil {
		badRequest(c, err)
		return
	}
	result, err := s.svc.Rooms.End(c.Request.Context(), callerOf(c), roomKeyOf(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) depositPrize(c *gin.Context) {
	slot, err := strconv.Atoi(c.Param("slot"))
	if err != nil {
		badRequest(c, err)
		return
	}
	room, err := s.svc.Rooms.DepositPrize(c.Request.Context(), callerOf(c), roomKeyOf(c), slot)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

type accountRequest struct {
	Asset model.AssetType `json:"asset" binding:"required"`
}

func (s *Server) openAccount(c *gin.Context) {
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	acct, err := s.svc.Ledger.OpenAccount(c.Request.Context(), callerOf(c), req.Asset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (s *Server) listAccounts(c *gin.Context) {
	accts, err := s.svc.Ledger.Balances(c.Request.Context(), callerOf(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accts})
}

func (s *Server) getPlatform(c *gin.Context) {
	cfg, err := s.svc.Platform.Get(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"admin":           cfg.Admin,
		"platform_wallet": cfg.PlatformWallet,
		"charity_wallet":  cfg.CharityWallet,
		"policy":          cfg.Policy,
		"paused":          cfg.Paused,
		"approved_assets": cfg.ApprovedAssets,
	})
}

func (s *Server) updatePolicy(c *gin.Context) {
	var u service.PolicyUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		badRequest(c, err)
		return
	}
	cfg, err := s.svc.Platform.UpdateFeePolicy(c.Request.Context(), callerOf(c), u)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"policy": cfg.Policy})
}

type pauseRequest struct {
	Paused *bool `json:"paused" binding:"required"`
}

func (s *Server) setPause(c *gin.Context) {
	var req pauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.svc.Platform.SetPause(c.Request.Context(), callerOf(c), *req.Paused); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) approveAsset(c *gin.Context) {
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.svc.Platform.ApproveAsset(c.Request.Context(), callerOf(c), req.Asset); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) removeAsset(c *gin.Context) {
	if err := s.svc.Platform.RemoveAsset(c.Request.Context(), callerOf(c), model.AssetType(c.Param("asset"))); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type mintRequest struct {
	Owner  model.Address   `json:"owner" binding:"required"`
	Asset  model.AssetType `json:"asset" binding:"required"`
	Amount uint64          `json:"amount" binding:"required"`
}

func (s *Server) mint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	acct, err := s.svc.Ledger.Mint(c.Request.Context(), callerOf(c), req.Owner, req.Asset, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}
