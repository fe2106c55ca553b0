// ABOUTME: Skill bundle publishing endpoint
// ABOUTME: Submits a packaged skill manifest plus files to the registry pipeline

package broker

import (
	"context"
	"net/http"
)

// SkillFile is one file in a skill bundle, base64-encoded.
type SkillFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// PublishSkillRequest is the payload for POST /skills/publish.
type PublishSkillRequest struct {
	UAID     string      `json:"uaid"`
	Manifest any         `json:"manifest"`
	Files    []SkillFile `json:"files"`
}

// PublishSkillResult reports the published skill location.
type PublishSkillResult struct {
	SkillID string `json:"skillId"`
	URL     string `json:"url"`
}

// PublishSkill submits a skill bundle to the registry publishing pipeline.
func (c *Client) PublishSkill(ctx context.Context, req PublishSkillRequest) (*PublishSkillResult, error) {
	var res PublishSkillResult
	if err := c.do(ctx, http.MethodPost, "/skills/publish", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
