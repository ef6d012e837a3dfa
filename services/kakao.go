package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/kakao"
)

// KakaoUser is the portion of the Kakao /v2/user/me response we care about.
type KakaoUser struct {
	ID           int64 `json:"id"` // Kakao's numeric user ID, stable across logins
	KakaoAccount struct {
		Email   string `json:"email"`
		Profile struct {
			Nickname string `json:"nickname"`
		} `json:"profile"`
	} `json:"kakao_account"`
}

// KakaoProvider wraps golang.org/x/oauth2 for the Kakao authorization code
// flow. The code-for-token exchange happens server-to-server with the client
// secret, so the access token never reaches the browser.
type KakaoProvider struct {
	config *oauth2.Config
}

func NewKakaoProvider(clientID, clientSecret, redirectURL string) *KakaoProvider {
	return &KakaoProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"profile_nickname", "account_email"},
			Endpoint:     kakao.Endpoint,
		},
	}
}

// AuthURL returns the URL to redirect the user to for authorization. The
// state is stored in a cookie and verified on callback to prevent CSRF.
func (p *KakaoProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for the Kakao user profile.
func (p *KakaoProvider) Exchange(ctx context.Context, code string) (*KakaoUser, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange kakao code: %w", err)
	}

	client := p.config.Client(ctx, oauthToken)
	resp, err := client.Get("https://kapi.kakao.com/v2/user/me")
	if err != nil {
		return nil, fmt.Errorf("failed to call kakao user API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kakao user API returned status %d", resp.StatusCode)
	}

	var kakaoUser KakaoUser
	if err := json.NewDecoder(resp.Body).Decode(&kakaoUser); err != nil {
		return nil, fmt.Errorf("failed to decode kakao user response: %w", err)
	}
	if kakaoUser.ID == 0 {
		return nil, fmt.Errorf("kakao returned an invalid user")
	}

	return &kakaoUser, nil
}
