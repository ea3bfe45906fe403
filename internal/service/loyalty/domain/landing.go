// internal/service/loyalty/domain/landing.go
package domain

// LandingConfig 是公开注册页的配置，保留任意附加字段
type LandingConfig map[string]any

// DefaultLandingConfig 返回一份新的默认配置
func DefaultLandingConfig() LandingConfig {
	return LandingConfig{
		"formTitle":  "Únete a nuestro club",
		"headerText": "Regístrate y recoge sellos con cada visita.",
		"buttonText": "Registrarme",
		"logoUrl":    "",
		"fields": map[string]any{
			"name":     true,
			"lastname": true,
			"email":    true,
			"phone":    true,
			"birthday": false,
		},
		"legal": map[string]any{
			"businessName": "Nombre del negocio",
			"email":        "contacto@tunegocio.com",
			"phone":        "+34 600 000 000",
			"terms":        "Texto legal completo…",
			"privacy":      "Describe tu política de privacidad…",
		},
	}
}

// MergeLandingConfig 把已保存的配置覆盖到默认值上，fields 和 legal 按键合并
func MergeLandingConfig(stored LandingConfig) LandingConfig {
	out := DefaultLandingConfig()
	for k, v := range stored {
		if k == "fields" || k == "legal" {
			continue
		}
		out[k] = v
	}
	for _, nested := range []string{"fields", "legal"} {
		sub, ok := stored[nested].(map[string]any)
		if !ok {
			continue
		}
		merged := out[nested].(map[string]any)
		for k, v := range sub {
			merged[k] = v
		}
	}
	return out
}
