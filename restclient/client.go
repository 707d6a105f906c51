// Package restclient is the Go client of the relayer's HTTP ingress,
// used by the operator CLI and by integrators embedding the relayer.
package restclient

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spruceid/siwe-go"

	"github.com/catalogfi/hermes/rest"
)

// SwapStatus is the status document served for one coordinated order.
type SwapStatus struct {
	OrderHash        string `json:"orderHash"`
	CounterOrderHash string `json:"counterOrderHash"`
	SecretHash       string `json:"secretHash"`
	Phase            string `json:"phase"`
	SrcChain         string `json:"srcChain"`
	DstChain         string `json:"dstChain"`
	SrcDeployed      bool   `json:"srcDeployed"`
	SrcWithdrawn     bool   `json:"srcWithdrawn"`
	SrcCancelled     bool   `json:"srcCancelled"`
	DstDeployed      bool   `json:"dstDeployed"`
	DstWithdrawn     bool   `json:"dstWithdrawn"`
	DstCancelled     bool   `json:"dstCancelled"`
}

type Client interface {
	// Login runs the SIWE flow with the key and keeps the session token
	// for authenticated calls.
	Login(key *ecdsa.PrivateKey) error

	SetJwt(token string)

	SetURL(serverURL string)

	PublishOrder(req rest.CreateOrder) (string, error)

	Order(orderHash string) (SwapStatus, error)

	WithdrawOrder(orderHash string) error
}

type client struct {
	url   string
	token string
}

func NewClient(serverURL string) Client {
	return &client{url: serverURL}
}

func (c *client) SetJwt(token string) {
	c.token = token
}

func (c *client) SetURL(serverURL string) {
	c.url = serverURL
}

func (c *client) Login(key *ecdsa.PrivateKey) error {
	var nonceResp struct {
		Nonce string `json:"nonce"`
	}
	if err := c.get("/nonce", &nonceResp); err != nil {
		return err
	}

	parsed, err := url.Parse(c.url)
	if err != nil {
		return err
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	message, err := siwe.InitMessage(parsed.Host, addr.Hex(), c.url, nonceResp.Nonce, map[string]interface{}{
		"chainId":   1,
		"statement": "sign in to the swap relayer",
	})
	if err != nil {
		return err
	}

	msg := message.String()
	sig, err := crypto.Sign(accounts.TextHash([]byte(msg)), key)
	if err != nil {
		return err
	}
	sig[64] += 27

	var verifyResp struct {
		Token string `json:"token"`
	}
	if err := c.post("/verify", rest.VerifySiwe{
		Message:   msg,
		Signature: hexutil.Encode(sig),
	}, &verifyResp); err != nil {
		return err
	}
	c.token = verifyResp.Token
	return nil
}

func (c *client) PublishOrder(req rest.CreateOrder) (string, error) {
	var resp struct {
		OrderHash string `json:"orderHash"`
	}
	if err := c.post("/orders", req, &resp); err != nil {
		return "", err
	}
	return resp.OrderHash, nil
}

func (c *client) Order(orderHash string) (SwapStatus, error) {
	var status SwapStatus
	err := c.get("/orders/"+orderHash, &status)
	return status, err
}

func (c *client) WithdrawOrder(orderHash string) error {
	return c.do(http.MethodDelete, "/orders/"+orderHash, nil, nil)
}

func (c *client) get(path string, result interface{}) error {
	return c.do(http.MethodGet, path, nil, result)
}

func (c *client) post(path string, body interface{}, result interface{}) error {
	return c.do(http.MethodPost, path, body, result)
}

func (c *client) do(method, path string, body interface{}, result interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.url+path, reader)
	if err != nil {
		return err
	}
	req.Close = true
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	respBytes, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("error reading reply: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var serverErr struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(respBytes, &serverErr); err == nil && serverErr.Error != "" {
			return fmt.Errorf("%v: %v", resp.Status, serverErr.Error)
		}
		return fmt.Errorf("%v", resp.Status)
	}

	if result == nil {
		return nil
	}
	return json.Unmarshal(respBytes, result)
}
