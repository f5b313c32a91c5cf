package xauth

import (
	"net/http"
	"regexp"
	"strings"
)

// UnknownDevice 无法识别 User-Agent 时的设备名。
const UnknownDevice = "Unknown Device"

var (
	iphoneModel  = regexp.MustCompile(`iPhone\s+(\d+)`)
	androidModel = regexp.MustCompile(`Android.*?;\s*([^)]+)\)`)
)

// DeviceInfo refresh token 对应的登录设备。
type DeviceInfo struct {
	IP        string `json:"ip"`
	UserAgent string `json:"ua"`
	Device    string `json:"device"`
	// CreatedAt、ExpiresAt 为 Unix 秒。
	CreatedAt int64 `json:"createdAt"`
	ExpiresAt int64 `json:"expiresAt"`
}

// DeviceFromRequest 从请求中提取设备信息，clientIP 由调用方解析。
func DeviceFromRequest(r *http.Request, clientIP string) DeviceInfo {
	ua := r.Header.Get("User-Agent")
	if ua == "" {
		ua = "unknown"
	}
	return DeviceInfo{
		IP:        clientIP,
		UserAgent: ua,
		Device:    ParseDevice(ua),
	}
}

// ParseDevice 从 User-Agent 粗略推断设备名。
func ParseDevice(ua string) string {
	if ua == "" || ua == "unknown" {
		return UnknownDevice
	}
	lower := strings.ToLower(ua)
	has := func(s string) bool { return strings.Contains(lower, s) }

	switch {
	case has("iphone"):
		if m := iphoneModel.FindStringSubmatch(ua); m != nil {
			return "iPhone " + m[1]
		}
		return "iPhone"
	case has("ipad"):
		return "iPad"
	case has("android"):
		if m := androidModel.FindStringSubmatch(ua); m != nil {
			if model := strings.TrimSpace(m[1]); model != "" {
				return model
			}
		}
		return "Android Device"
	case has("windows"):
		// Edge 的 UA 同时包含 Chrome，需要先判断
		switch {
		case has("edg"):
			return "Windows Edge"
		case has("chrome"):
			return "Windows Chrome"
		case has("firefox"):
			return "Windows Firefox"
		}
		return "Windows PC"
	case has("macintosh"):
		switch {
		case has("chrome"):
			return "Mac Chrome"
		case has("safari"):
			return "Mac Safari"
		}
		return "Mac Computer"
	case has("linux"):
		return "Linux Computer"
	}
	return UnknownDevice
}
