package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"flowbackend/config"
	"flowbackend/db"
	"flowbackend/services/oauth"
	"flowbackend/services/tokenmanager"
	"flowbackend/services/txmanager"
)

func main() {
	name := flag.String("name", "", "display name of the OAuth client")
	redirectURIs := flag.String("redirect-uris", "", "comma-separated list of allowed redirect URIs")
	flag.Parse()

	if *name == "" || *redirectURIs == "" {
		log.Fatalf("❌ Usage: genclient -name <client name> -redirect-uris <uri,uri,...>")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	dbConn, err := db.NewConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer dbConn.Close()

	clientsRepo := db.NewPostgresOAuthClientsRepository(dbConn, cfg.DatabaseSchema)
	codesRepo := db.NewPostgresAuthorizationCodesRepository(dbConn, cfg.DatabaseSchema)
	tokensRepo := db.NewPostgresTokensRepository(dbConn, cfg.DatabaseSchema)
	tokenManager := tokenmanager.NewTokenManager(cfg.OAuthConfig.JWTSecret, cfg.OAuthConfig.Issuer, tokensRepo)
	txManager := txmanager.NewTransactionManager(dbConn)
	oauthService := oauth.NewOAuthService(clientsRepo, codesRepo, tokensRepo, tokenManager, txManager)

	var uris []string
	for _, uri := range strings.Split(*redirectURIs, ",") {
		uris = append(uris, strings.TrimSpace(uri))
	}

	log.Printf("🔑 Registering OAuth client %q...", *name)
	client, secret, err := oauthService.CreateClient(context.Background(), *name, uris)
	if err != nil {
		log.Fatalf("❌ Failed to create OAuth client: %v", err)
	}

	fmt.Printf("Client ID:     %s\n", client.ID)
	fmt.Printf("Client Secret: %s\n", secret)
	fmt.Printf("Redirect URIs: %s\n", strings.Join(client.RedirectURIs, ", "))
	log.Printf("✅ OAuth client registered. The secret is shown only once, store it now.")
}
