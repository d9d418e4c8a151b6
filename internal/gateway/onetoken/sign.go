package onetoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/betbot/fxcore/pkg/idgen"
	"github.com/betbot/fxcore/pkg/rest"
)

// Signature hex(HMAC-SHA256(secret, method+path+nonce+body))
func Signature(secret, method, path, nonce, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(method + path + nonce + body))
	return hex.EncodeToString(mac.Sum(nil))
}

// signPath 去掉版本和业务前缀：/v1/trade/okex/acc/orders -> /okex/acc/orders
func signPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.SplitN(path, "/", 4)
	if len(parts) < 4 {
		return path
	}
	return "/" + parts[3]
}

type signer struct {
	key    string
	secret string
	nonce  *idgen.Nonce
}

var _ rest.Signer = (*signer)(nil)

func (s *signer) Sign(req *rest.Request) (*rest.Request, error) {
	var body string
	switch d := req.Data.(type) {
	case nil:
	case string:
		body = d
	case []byte:
		body = string(d)
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return nil, err
		}
		body = string(b)
		req.Data = body
	}

	nonce := strconv.FormatInt(s.nonce.Next(), 10)
	req.Headers["Api-Nonce"] = nonce
	req.Headers["Api-Key"] = s.key
	req.Headers["Api-Signature"] = Signature(s.secret, req.Method, signPath(req.Path), nonce, body)
	req.Headers["Content-Type"] = "application/json"
	return req, nil
}
