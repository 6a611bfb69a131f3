package notify

const emailHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.Title}}</title>
  <style>
    body {
      margin: 0;
      padding: 24px;
      background-color: #f3f4f6;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      color: #111827;
      line-height: 1.5;
    }

    .container {
      max-width: 640px;
      margin: 0 auto;
      background: #ffffff;
      border-radius: 8px;
      border: 1px solid #e5e7eb;
      overflow: hidden;
    }

    .header {
      padding: 20px 24px;
      background: linear-gradient(135deg, #463737 0%, #37393b 100%);
      color: #ffffff;
    }

    .heading {
      font-size: 24px;
      font-weight: 700;
      letter-spacing: 0.05em;
      margin-bottom: 4px;
    }

    .title {
      font-size: 15px;
      opacity: 0.9;
    }

    .section {
      padding: 16px 24px;
      border-top: 1px solid #f3f4f6;
    }

    .section-title {
      font-size: 11px;
      font-weight: 700;
      color: #6b7280;
      text-transform: uppercase;
      letter-spacing: 0.1em;
      margin-bottom: 12px;
    }

    .file-list {
      margin: 0;
      padding-left: 20px;
      font-size: 14px;
    }

    .file-list li {
      margin-bottom: 6px;
      padding-left: 4px;
      word-break: break-all;
    }

    .note-box {
      background: #f9fafb;
      border-left: 3px solid #463737;
      padding: 12px 16px;
      font-size: 13px;
      color: #374151;
      border-radius: 0 4px 4px 0;
    }

    .digest {
      font-size: 14px;
    }

    .digest h1 {
      font-size: 18px;
    }

    .digest h2 {
      font-size: 15px;
    }

    .footer {
      padding: 16px 24px;
      font-size: 12px;
      color: #9ca3af;
      text-align: center;
      background: #f9fafb;
      border-top: 1px solid #f3f4f6;
    }

    a {
      color: #0b3d91;
      text-decoration: none;
    }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <div class="heading">{{.Title}}</div>
      <div class="title">Generated {{.Generated.Format "2006-01-02 15:04"}}</div>
    </div>

    <div class="section">
      <div class="section-title">Attached Files ({{len .Files}})</div>
      <ul class="file-list">
        {{range .Files}}
        <li>{{base .}}</li>
        {{end}}
      </ul>
    </div>

    {{if .MissingNote}}
    <div class="section">
      <div class="note-box">{{.MissingNote}}</div>
    </div>
    {{end}}

    {{if .DigestHTML}}
    <div class="section digest">
      <div class="section-title">Recent Disclosures</div>
      {{.DigestHTML}}
    </div>
    {{end}}

    <div class="footer">
      Generated by <a href=https://github.com/shanehull/filingscraper  target="_blank" rel="noopener">filingscraper</a>
    </div>
  </div>
</body>
</html>`
