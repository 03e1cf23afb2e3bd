package config

import (
	"sync"
)

var (
	s3Once   sync.Once
	s3Config *S3Config
)

type S3Config struct {
	BucketName string `yaml:"bucket_name"`
	Region     string `yaml:"region"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
}

func GetS3Config() *S3Config {
	s3Once.Do(func() {
		loadEnv()

		s3Config = &S3Config{
			BucketName: getEnv("AWS_S3_BUCKET_NAME", ""),
			Region:     getEnv("AWS_REGION", "us-east-1"),
			Endpoint:   getEnv("AWS_ENDPOINT", ""),
			AccessKey:  getEnv("AWS_ACCESS_KEY", ""),
			SecretKey:  getEnv("AWS_SECRET_KEY", ""),
		}
		if overlay := GetAppConfig().overlay; overlay != nil && overlay.S3 != nil {
			o := overlay.S3
			if o.BucketName != "" {
				s3Config.BucketName = o.BucketName
			}
			if o.Region != "" {
				s3Config.Region = o.Region
			}
			if o.Endpoint != "" {
				s3Config.Endpoint = o.Endpoint
			}
		}
	})
	return s3Config
}
