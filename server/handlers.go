package server

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cdpmarket/auctionengine/core"
	"github.com/cdpmarket/auctionengine/engine"
	"github.com/cdpmarket/auctionengine/engineapi"
)

// dispatch decodes the base request type and routes to the matching handler.
// Returns the response value to encode.
func (s *Server) dispatch(raw []byte) any {
	var base engineapi.BaseRequest
	if err := json.Unmarshal(raw, &base); err != nil {
		log.Printf("ERROR: Failed to decode base request: %v", err)
		return errorResponse(fmt.Errorf("malformed request: %w", err))
	}

	log.Printf("INFO: Received request type: %s", base.Type)

	switch base.Type {
	case engineapi.TypePing:
		return engineapi.PingResponse{
			Type:      "pong",
			Message:   "auction engine is healthy",
			Timestamp: time.Now().Unix(),
		}
	case engineapi.TypeCreateAuction:
		return decodeAnd(raw, s.handleCreateAuction)
	case engineapi.TypeSubmitBid:
		return decodeAnd(raw, s.handleSubmitBid)
	case engineapi.TypeRevokeBid:
		return decodeAnd(raw, s.handleRevokeBid)
	case engineapi.TypeCancelExpired:
		return decodeAnd(raw, s.handleCancelExpired)
	case engineapi.TypeClaimProceeds:
		return decodeAnd(raw, s.handleClaimProceeds)
	case engineapi.TypeGetAuctionInfo:
		return decodeAnd(raw, s.handleGetAuctionInfo)
	case engineapi.TypeGetBidInfo:
		return decodeAnd(raw, s.handleGetBidInfo)
	default:
		return engineapi.ErrorResponse{
			Type:    "error",
			Code:    "UnknownRequest",
			Message: fmt.Sprintf("unknown request type: %s", base.Type),
		}
	}
}

// decodeAnd unmarshals the concrete request type and invokes the handler.
func decodeAnd[Req any](raw []byte, handle func(Req) any) any {
	var req Req
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Printf("ERROR: Failed to decode request: %v", err)
		return errorResponse(fmt.Errorf("malformed request: %w", err))
	}
	return handle(req)
}

func (s *Server) handleCreateAuction(req engineapi.CreateAuctionRequest) any {
	auction, err := s.engine.CreateAuction(engine.CreateAuctionParams{
		Position:    core.PositionID(req.Position),
		Seller:      core.Address(req.Seller),
		SellerProxy: core.Address(req.SellerProxy),
		Token:       core.Address(req.Token),
		Ask:         req.Ask,
		ExpiryBlock: req.ExpiryBlock,
		Salt:        req.Salt,
	})
	if err != nil {
		return errorResponse(err)
	}
	return engineapi.CreateAuctionResponse{
		Type:    "create_auction_response",
		Auction: engineapi.AuctionInfoFrom(auction),
	}
}

func (s *Server) handleSubmitBid(req engineapi.SubmitBidRequest) any {
	bid, auction, err := s.engine.SubmitBid(engine.SubmitBidParams{
		AuctionID:   core.AuctionID(req.AuctionID),
		Buyer:       core.Address(req.Buyer),
		BuyerProxy:  core.Address(req.BuyerProxy),
		Token:       core.Address(req.Token),
		Value:       req.Value,
		ExpiryBlock: req.ExpiryBlock,
		Salt:        req.Salt,
	})
	if err != nil {
		return errorResponse(err)
	}
	return engineapi.SubmitBidResponse{
		Type:    "submit_bid_response",
		Bid:     engineapi.BidInfoFrom(bid),
		Auction: engineapi.AuctionInfoFrom(auction),
		Settled: bid.Accepted,
	}
}

func (s *Server) handleRevokeBid(req engineapi.RevokeBidRequest) any {
	bid, err := s.engine.RevokeBid(core.BidID(req.BidID), core.Address(req.Caller))
	if err != nil {
		return errorResponse(err)
	}
	return engineapi.RevokeBidResponse{
		Type: "revoke_bid_response",
		Bid:  engineapi.BidInfoFrom(bid),
	}
}

func (s *Server) handleCancelExpired(req engineapi.CancelExpiredRequest) any {
	auction, err := s.engine.CancelExpired(core.AuctionID(req.AuctionID))
	if err != nil {
		return errorResponse(err)
	}
	return engineapi.CancelExpiredResponse{
		Type:    "cancel_expired_response",
		Auction: engineapi.AuctionInfoFrom(auction),
	}
}

func (s *Server) handleClaimProceeds(req engineapi.ClaimProceedsRequest) any {
	amount, err := s.engine.ClaimProceeds(core.AuctionID(req.AuctionID), core.Address(req.Caller))
	if err != nil {
		return errorResponse(err)
	}
	return engineapi.ClaimProceedsResponse{
		Type:   "claim_proceeds_response",
		Amount: amount,
	}
}

func (s *Server) handleGetAuctionInfo(req engineapi.GetAuctionInfoRequest) any {
	auction, err := s.engine.GetAuctionInfo(core.AuctionID(req.AuctionID))
	if err != nil {
		return errorResponse(err)
	}
	return engineapi.AuctionInfoResponse{
		Type:    "auction_info_response",
		Auction: engineapi.AuctionInfoFrom(auction),
	}
}

func (s *Server) handleGetBidInfo(req engineapi.GetBidInfoRequest) any {
	bid, err := s.engine.GetBidInfo(core.BidID(req.BidID))
	if err != nil {
		return errorResponse(err)
	}
	return engineapi.BidInfoResponse{
		Type: "bid_info_response",
		Bid:  engineapi.BidInfoFrom(bid),
	}
}

func errorResponse(err error) engineapi.ErrorResponse {
	return engineapi.ErrorResponse{
		Type:    "error",
		Code:    core.ErrorCode(err),
		Message: err.Error(),
	}
}
