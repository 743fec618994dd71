package swagger

//go:generate swag init --generalInfo swagger.go --output docs --dir .,../internal/httpapi,../api --parseInternal --outputTypes go,json --generatedTime=false
//go:generate go run ./internal/swaggerhtml --spec docs/swagger.json --out docs/swagger.html

// @title           stockd API
// @version         1.0
// @description     stockd stores stock records (symbol, price, volume, market cap) and serves CRUD and aggregate statistics over HTTP.
// @contact.name    Michel Blomgren
// @contact.email   sa6mwa@gmail.com
// @contact.url     https://pkt.systems
// @license.name    MIT
// @license.url     https://opensource.org/license/mit/
// @BasePath        /
// @schemes         http https
// @accept          json
// @produce         json
// @tag.name        stocks
// @tag.description Create, read, update and delete stock records.
// @tag.name        system
// @tag.description Service information, health and readiness probes.
// @securityDefinitions.basic  basicAuth

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Package swagger provides go:generate hooks for producing OpenAPI assets.
type Package struct{}

// UIPage renders a standalone Swagger UI page embedding spec.
func UIPage(spec []byte) ([]byte, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, spec); err != nil {
		return nil, fmt.Errorf("compact spec: %w", err)
	}
	return []byte(fmt.Sprintf(pageTemplate, compact.String())), nil
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>stockd API reference</title>
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
  <style>
    body { margin: 0; background: #f7f7f7; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-standalone-preset.js"></script>
  <script>
    window.onload = function() {
      const spec = %s;
      SwaggerUIBundle({
        spec: spec,
        dom_id: '#swagger-ui',
        deepLinking: true,
        presets: [SwaggerUIBundle.presets.apis, SwaggerUIStandalonePreset],
        layout: 'BaseLayout'
      });
    };
  </script>
</body>
</html>
`
