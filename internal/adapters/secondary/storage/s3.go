package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/google/uuid"

	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/ports"
)

// MaxImageSize : 5 Mo.
const MaxImageSize = 5 * 1024 * 1024

// Formats autorisés -> extension de la clé S3.
var allowedTypes = map[string]string{
	"image/png":  ".png",
	"image/jpg":  ".jpg",
	"image/jpeg": ".jpg",
}

type Config struct {
	Bucket   string
	Region   string
	Endpoint string // vide = AWS ; sinon MinIO/LocalStack (path-style)
	Folder   string
	BaseURL  string // préfixe public (CDN) ; vide = URL S3 du bucket
}

// S3Gateway est le Media Gateway : public_id = clé S3, asset_id = UUID
// stocké en metadata de l'objet.
type S3Gateway struct {
	bucket   string
	folder   string
	baseURL  string
	uploader s3manageriface.UploaderAPI
	svc      s3iface.S3API
}

var _ ports.MediaGateway = (*S3Gateway)(nil)

func NewS3Gateway(cfg Config) (*S3Gateway, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}

	return newS3Gateway(cfg, s3manager.NewUploader(sess), s3.New(sess)), nil
}

func newS3Gateway(cfg Config, uploader s3manageriface.UploaderAPI, svc s3iface.S3API) *S3Gateway {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.amazonaws.com", cfg.Bucket)
	}
	return &S3Gateway{
		bucket:   cfg.Bucket,
		folder:   strings.Trim(cfg.Folder, "/"),
		baseURL:  baseURL,
		uploader: uploader,
		svc:      svc,
	}
}

// Upload filtre (format + taille) puis envoie le fichier. Le fichier local est
// supprimé sur tous les chemins de sortie. Un fichier refusé n'est jamais envoyé.
func (g *S3Gateway) Upload(ctx context.Context, file domain.LocalFile) (domain.Image, error) {
	defer removeLocal(file.Path)

	contentType, ext, err := checkImage(file)
	if err != nil {
		return domain.Image{}, err
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return domain.Image{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	assetID := uuid.NewString()
	key := path.Join(g.folder, assetID+ext)

	_, err = g.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		ACL:         aws.String("public-read"),
		Bucket:      aws.String(g.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
		Metadata: map[string]*string{
			"Asset-Id": aws.String(assetID),
		},
	})
	if err != nil {
		slog.Error("Image upload to object storage failed", "key", key, "error", err)
		return domain.Image{}, fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}

	return domain.Image{
		URL:      g.baseURL + "/" + key,
		AssetID:  assetID,
		PublicID: key,
	}, nil
}

// DeleteAsset est best-effort : un asset orphelin est un état dégradé acceptable.
func (g *S3Gateway) DeleteAsset(ctx context.Context, publicID string) {
	if publicID == "" {
		return
	}
	_, err := g.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(publicID),
	})
	if err != nil {
		slog.Error("Error while deleting image from object storage", "public_id", publicID, "error", err)
		return
	}
	slog.Info("Image deleted from object storage", "public_id", publicID)
}

// checkImage : le type déclaré ET le contenu réel doivent être autorisés.
func checkImage(file domain.LocalFile) (string, string, error) {
	invalidFormat := &domain.ValidationError{
		Message: "Only png, jpg and jpeg images are allowed",
		Fields:  []domain.FieldError{{Field: "image", Message: "unsupported image format"}},
	}

	info, err := os.Stat(file.Path)
	if err != nil {
		return "", "", fmt.Errorf("stat upload: %w", err)
	}
	if info.Size() == 0 {
		return "", "", domain.Invalid("No image provided")
	}
	if info.Size() > MaxImageSize {
		return "", "", &domain.ValidationError{
			Message: "Image is too large",
			Fields:  []domain.FieldError{{Field: "image", Message: "image must not exceed 5 MB"}},
		}
	}

	declared, _, err := mime.ParseMediaType(file.ContentType)
	if err != nil {
		return "", "", invalidFormat
	}
	if _, ok := allowedTypes[declared]; !ok {
		return "", "", invalidFormat
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return "", "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", "", fmt.Errorf("read upload: %w", err)
	}
	sniffed := http.DetectContentType(head[:n])
	ext, ok := allowedTypes[sniffed]
	if !ok {
		return "", "", invalidFormat
	}
	return sniffed, ext, nil
}

func removeLocal(p string) {
	if p == "" {
		return
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove temporary upload", "path", p, "error", err)
	}
}
