package main

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	configpkg "github.com/STJr/SRB2-sub004/internal/config"
	"github.com/STJr/SRB2-sub004/internal/logging"
)

const sharedSecretMetadataKey = "x-demo-shared-secret"

// configureGRPCSecurity derives the inspection server options. Transport
// security and the shared secret are independent; either may be absent.
func configureGRPCSecurity(cfg *configpkg.Config, logger *logging.Logger) ([]grpc.ServerOption, error) {
	if cfg == nil {
		return nil, fmt.Errorf("grpc config required")
	}
	if logger == nil {
		logger = logging.L()
	}
	var opts []grpc.ServerOption

	switch {
	case cfg.ClientCAPath != "":
		creds, err := loadMTLSCredentials(cfg.TLSCertPath, cfg.TLSKeyPath, cfg.ClientCAPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.Creds(creds))
		logger.Info("gRPC mTLS enabled")
	case cfg.TLSCertPath != "":
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCertPath, cfg.TLSKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load server keypair: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
		logger.Info("gRPC TLS enabled")
	}

	if secret := strings.TrimSpace(cfg.GRPCSecret); secret != "" {
		authLog := logger.Component("grpc_auth")
		opts = append(opts,
			grpc.ChainUnaryInterceptor(newSharedSecretUnaryInterceptor(secret, authLog)),
			grpc.ChainStreamInterceptor(newSharedSecretStreamInterceptor(secret, authLog)),
		)
		logger.Info("gRPC shared-secret authentication enabled")
	}
	return opts, nil
}

// secretGuard rejects inspection calls that do not present the shared secret.
type secretGuard struct {
	secret []byte
	log    *logging.Logger
}

func newSharedSecretUnaryInterceptor(secret string, logger *logging.Logger) grpc.UnaryServerInterceptor {
	return (&secretGuard{secret: []byte(strings.TrimSpace(secret)), log: logger}).unary
}

func newSharedSecretStreamInterceptor(secret string, logger *logging.Logger) grpc.StreamServerInterceptor {
	return (&secretGuard{secret: []byte(strings.TrimSpace(secret)), log: logger}).stream
}

func (g *secretGuard) unary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if err := g.check(ctx, info.FullMethod); err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

func (g *secretGuard) stream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if err := g.check(ss.Context(), info.FullMethod); err != nil {
		return err
	}
	return handler(srv, ss)
}

func (g *secretGuard) check(ctx context.Context, method string) error {
	err := verifySharedSecret(ctx, g.secret)
	if err != nil && g.log != nil {
		g.log.Warn("inspection call rejected", logging.String("method", method), logging.String("reason", status.Convert(err).Message()))
	}
	return err
}

func verifySharedSecret(ctx context.Context, secret []byte) error {
	if len(secret) == 0 {
		return status.Error(codes.Unauthenticated, "shared secret not configured")
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	candidate := extractSharedSecret(md)
	if candidate == "" {
		return status.Error(codes.Unauthenticated, "missing shared secret")
	}
	if subtle.ConstantTimeCompare([]byte(candidate), secret) != 1 {
		return status.Error(codes.Unauthenticated, "invalid shared secret")
	}
	return nil
}

func extractSharedSecret(md metadata.MD) string {
	for _, value := range md.Get(sharedSecretMetadataKey) {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	for _, value := range md.Get("authorization") {
		if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
			if token := strings.TrimSpace(value[7:]); token != "" {
				return token
			}
		}
	}
	return ""
}

func loadMTLSCredentials(certPath, keyPath, caPath string) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load server keypair: %w", err)
	}
	caBytes, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("read client ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("failed to parse client ca bundle")
	}
	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS12,
	}), nil
}
