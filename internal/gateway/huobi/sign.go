package huobi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/betbot/fxcore/pkg/rest"
)

const userAgent = "Mozilla/5.0 (Windows NT 6.1; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/39.0.2171.71 Safari/537.6"

// CreateSignature 按 Huobi v2 签名规则生成带签名的查询参数：
// METHOD\nhost\npath\n<按 key 排序并 urlencode 的参数>，HmacSHA256 后 base64。
func CreateSignature(apiKey, method, host, path, secret string, params url.Values, now time.Time) url.Values {
	signed := url.Values{}
	for k, vs := range params {
		signed[k] = append([]string(nil), vs...)
	}
	signed.Set("AccessKeyId", apiKey)
	signed.Set("SignatureMethod", "HmacSHA256")
	signed.Set("SignatureVersion", "2")
	signed.Set("Timestamp", now.UTC().Format("2006-01-02T15:04:05"))

	payload := strings.Join([]string{strings.ToUpper(method), host, path, signed.Encode()}, "\n")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	signed.Set("Signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	return signed
}

// signer Huobi REST 签名器
type signer struct {
	key    string
	secret string
	host   string
	now    func() time.Time
}

var _ rest.Signer = (*signer)(nil)

func (s *signer) Sign(req *rest.Request) (*rest.Request, error) {
	req.Headers["User-Agent"] = userAgent

	// 签名参数不能包含旧的签名（同一个请求可能被重签）
	params := url.Values{}
	for k, vs := range req.Params {
		switch k {
		case "AccessKeyId", "SignatureMethod", "SignatureVersion", "Timestamp", "Signature":
			continue
		}
		params[k] = vs
	}
	req.Params = CreateSignature(s.key, req.Method, s.host, req.Path, s.secret, params, s.now())

	if req.Method == "POST" {
		req.Headers["Content-Type"] = "application/json"
		switch req.Data.(type) {
		case nil, string, []byte:
		default:
			b, err := json.Marshal(req.Data)
			if err != nil {
				return nil, err
			}
			req.Data = string(b)
		}
	}
	return req, nil
}
