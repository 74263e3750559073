package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const (
	gdriveCredFile  = "gdrive_credentials.json"
	gdriveTokenFile = "gdrive_token.json"
)

type gdriveProvider struct{}

func (gdriveProvider) config() (*oauth2.Config, error) {
	b, err := readConfigFile(gdriveCredFile)
	if err != nil {
		return nil, err
	}

	cfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	return cfg, nil
}

func (p *gdriveProvider) Authorize() error {
	cfg, err := p.config()
	if err != nil {
		return err
	}

	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Println("Visit the URL for the auth dialog:")
	fmt.Println()
	fmt.Println(authURL)
	fmt.Println()
	fmt.Print("Enter the code here: ")

	var code string
	if _, err := fmt.Scan(&code); err != nil {
		return fmt.Errorf("failed to read code: %w", err)
	}

	token, err := cfg.Exchange(context.Background(), code)
	if err != nil {
		return fmt.Errorf("failed to exchange token: %w", err)
	}

	return saveToken(gdriveTokenFile, token)
}

func (p *gdriveProvider) NewService(ctx context.Context) (*drive.Service, error) {
	cfg, err := p.config()
	if err != nil {
		return nil, err
	}

	token, err := loadToken(gdriveTokenFile, "gdrive")
	if err != nil {
		return nil, err
	}

	tokenSource := cfg.TokenSource(ctx, token)
	if _, err := freshToken(tokenSource, token, gdriveTokenFile); err != nil {
		return nil, err
	}

	svc, err := drive.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create gdrive service: %w", err)
	}

	return svc, nil
}
