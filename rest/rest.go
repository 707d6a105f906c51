// Package rest is the relayer's HTTP ingress. Makers authenticate with
// Sign-In-With-Ethereum, publish and withdraw orders, and poll swap
// status. Escrow funding never goes through here, it happens directly
// on chain.
package rest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spruceid/siwe-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/catalogfi/hermes/pkg/model"
	"github.com/catalogfi/hermes/pkg/store"
)

// Coordinator is the part of the swap coordinator the ingress drives.
type Coordinator interface {
	Publish(order *model.Order) (common.Hash, error)
	Cancel(orderHash common.Hash) bool
	Status(orderHash common.Hash) (store.Swap, error)
}

type Server struct {
	router *gin.Engine
	logger *zap.Logger
	coord  Coordinator
	secret []byte
}

func NewServer(coord Coordinator, secret string, logger *zap.Logger) *Server {
	return &Server{
		router: gin.Default(),
		logger: logger.With(zap.String("component", "rest")),
		coord:  coord,
		secret: []byte(secret),
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.router.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	s.router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "online"})
	})
	s.router.GET("/nonce", s.nonce())
	s.router.POST("/verify", s.verify())
	s.router.GET("/orders/:hash", s.getOrder())

	authRoutes := s.router.Group("/")
	authRoutes.Use(s.authenticate)
	{
		authRoutes.POST("/orders", s.postOrder())
		authRoutes.DELETE("/orders/:hash", s.deleteOrder())
	}

	service := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		if err := service.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return service.Shutdown(shutdownCtx)
}

func (s *Server) nonce() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"nonce": siwe.GenerateNonce(),
		})
	}
}

// VerifySiwe is the login request, a signed SIWE message.
type VerifySiwe struct {
	Message   string `json:"message" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

type claims struct {
	UserWallet string `json:"userWallet"`
	jwt.StandardClaims
}

func (s *Server) verify() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		req := VerifySiwe{}
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		token, err := s.siweToken(req)
		if err != nil {
			ctx.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		tokenString, err := token.SignedString(s.secret)
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		ctx.JSON(http.StatusOK, gin.H{"token": tokenString})
	}
}

func (s *Server) siweToken(req VerifySiwe) (*jwt.Token, error) {
	parsedMessage, err := siwe.ParseMessage(req.Message)
	if err != nil {
		return nil, fmt.Errorf("error parsing message: %w", err)
	}

	valid, err := parsedMessage.ValidNow()
	if err != nil {
		return nil, fmt.Errorf("error validating message: %w", err)
	}
	if !valid {
		return nil, fmt.Errorf("message expired")
	}

	fromAddress, err := recoverSigner(parsedMessage.String(), req.Signature)
	if err != nil {
		return nil, fmt.Errorf("error verifying message: %w", err)
	}
	if *fromAddress != parsedMessage.GetAddress() {
		return nil, fmt.Errorf("signature does not match message address")
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		UserWallet: strings.ToLower(fromAddress.String()),
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(24 * time.Hour).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	}), nil
}

func recoverSigner(msg string, signature string) (*common.Address, error) {
	sigBytes, err := hexutil.Decode(signature)
	if err != nil {
		return nil, err
	}
	if len(sigBytes) != 65 {
		return nil, fmt.Errorf("invalid signature length")
	}
	if sigBytes[64] != 27 && sigBytes[64] != 28 {
		return nil, fmt.Errorf("invalid signature recovery byte")
	}
	sigBytes[64] -= 27

	pubkey, err := crypto.SigToPub(accounts.TextHash([]byte(msg)), sigBytes)
	if err != nil {
		return nil, err
	}
	addr := crypto.PubkeyToAddress(*pubkey)
	return &addr, nil
}

func (s *Server) authenticate(ctx *gin.Context) {
	tokenString := ctx.GetHeader("Authorization")
	if tokenString == "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization token"})
		return
	}
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	if tokenClaims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		userWallet, exists := tokenClaims["userWallet"]
		if !exists {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			return
		}
		ctx.Set("userWallet", strings.ToLower(userWallet.(string)))
	} else {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
		return
	}

	ctx.Next()
}

// CreateOrder is the publish request. Amounts are decimal strings.
type CreateOrder struct {
	Maker     string `json:"maker" binding:"required"`
	Receiver  string `json:"receiver" binding:"required"`
	SrcChain  string `json:"srcChain" binding:"required"`
	DstChain  string `json:"dstChain" binding:"required"`
	SrcToken  string `json:"srcToken" binding:"required"`
	DstToken  string `json:"dstToken" binding:"required"`
	SrcAmount string `json:"srcAmount" binding:"required"`
	DstAmount string `json:"dstAmount" binding:"required"`
	Signature string `json:"signature"`
}

func (s *Server) postOrder() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		req := CreateOrder{}
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		order, err := req.order()
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Makers on an EVM source chain must publish from the wallet they
		// signed in with.
		if order.SrcChain.IsEVM() {
			userWallet := ctx.GetString("userWallet")
			if !strings.EqualFold(order.Maker, userWallet) {
				ctx.JSON(http.StatusForbidden, gin.H{"error": "maker does not match authenticated wallet"})
				return
			}
		}

		orderHash, err := s.coord.Publish(order)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		s.logger.Info("order published", zap.String("order", orderHash.Hex()))
		ctx.JSON(http.StatusCreated, gin.H{"orderHash": orderHash.Hex()})
	}
}

func (req *CreateOrder) order() (*model.Order, error) {
	srcChain, err := model.ParseChain(req.SrcChain)
	if err != nil {
		return nil, err
	}
	dstChain, err := model.ParseChain(req.DstChain)
	if err != nil {
		return nil, err
	}
	srcAmount, ok := new(big.Int).SetString(req.SrcAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid source amount: %v", req.SrcAmount)
	}
	dstAmount, ok := new(big.Int).SetString(req.DstAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid destination amount: %v", req.DstAmount)
	}

	return &model.Order{
		Maker:     req.Maker,
		Receiver:  req.Receiver,
		SrcChain:  srcChain,
		DstChain:  dstChain,
		SrcToken:  req.SrcToken,
		DstToken:  req.DstToken,
		SrcAmount: srcAmount,
		DstAmount: dstAmount,
		Signature: req.Signature,
		CreatedAt: time.Now(),
	}, nil
}

func (s *Server) deleteOrder() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		orderHash := common.HexToHash(ctx.Param("hash"))
		if !s.coord.Cancel(orderHash) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"orderHash": orderHash.Hex()})
	}
}

func (s *Server) getOrder() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		orderHash := common.HexToHash(ctx.Param("hash"))
		swap, err := s.coord.Status(orderHash)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "no swap for order"})
				return
			}
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusOK, statusResponse(swap))
	}
}

// statusResponse strips the secret, it must never leave the relayer
// through the status endpoint.
func statusResponse(swap store.Swap) gin.H {
	return gin.H{
		"orderHash":        swap.OrderHash,
		"counterOrderHash": swap.CounterOrderHash,
		"secretHash":       swap.SecretHash,
		"phase":            swap.Phase,
		"srcChain":         swap.SrcChain,
		"dstChain":         swap.DstChain,
		"srcDeployed":      swap.SrcDeployed,
		"srcWithdrawn":     swap.SrcWithdrawn,
		"srcCancelled":     swap.SrcCancelled,
		"dstDeployed":      swap.DstDeployed,
		"dstWithdrawn":     swap.DstWithdrawn,
		"dstCancelled":     swap.DstCancelled,
		"createdAt":        swap.CreatedAt,
		"updatedAt":        swap.UpdatedAt,
	}
}
