package mocks

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name ImageStore --dir ../domain/roster --output domain/roster --outpkg rostermock --filename image_store_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Writer --dir ../domain/roster --output domain/roster --outpkg rostermock --filename writer_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Repository --dir ../domain/rawdata --output domain/rawdata --outpkg rawdatamock --filename repository_mock.go
