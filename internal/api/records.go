package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/khanza-api/internal/store"
	"github.com/nao1215/khanza-api/pkg/metrics"
	"github.com/nao1215/khanza-api/pkg/middleware"
)

// minYear は受け付ける最小の年。
const minYear = 1900

// handleGetPegawai はNIKで職員データを返すハンドラを返す。
func (s *Server) handleGetPegawai() gin.HandlerFunc {
	return func(c *gin.Context) {
		nik := c.Query("nik")
		if nik == "" {
			fail(c, http.StatusBadRequest, "Parameter NIK is required")
			return
		}

		pegawai, err := s.repo.FindPegawaiByNIK(c.Request.Context(), nik)
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, "Data pegawai not found")
			return
		}
		if err != nil {
			s.storeError(c, "find_pegawai", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Data pegawai retrieved successfully",
			"data":    pegawai,
		})
	}
}

// handleGetRawatInapDr は指定年月の入院医師処置を返すハンドラを返す。
func (s *Server) handleGetRawatInapDr() gin.HandlerFunc {
	return monthlyHandler(s, "list_rawat_inap_dr", "rawat inap dokter", s.repo.ListRawatInapDr)
}

// handleGetRawatJlDr は指定年月の外来医師処置を返すハンドラを返す。
func (s *Server) handleGetRawatJlDr() gin.HandlerFunc {
	return monthlyHandler(s, "list_rawat_jl_dr", "rawat jalan dokter", s.repo.ListRawatJlDr)
}

// handleGetJnsPerawatanInap は入院処置マスタを返すハンドラを返す。
func (s *Server) handleGetJnsPerawatanInap() gin.HandlerFunc {
	return listHandler(s, "list_jns_perawatan_inap", "jenis perawatan inap", s.repo.ListJnsPerawatanInap)
}

// handleGetJnsPerawatan は外来処置マスタを返すハンドラを返す。
func (s *Server) handleGetJnsPerawatan() gin.HandlerFunc {
	return listHandler(s, "list_jns_perawatan", "jenis perawatan", s.repo.ListJnsPerawatan)
}

// monthlyHandler は bulan・tahun クエリで絞り込む一覧ハンドラを組み立てる。
func monthlyHandler[T any](s *Server, operation, label string, list func(ctx context.Context, year, month int) ([]T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		bulan, tahun := c.Query("bulan"), c.Query("tahun")
		month, year, msg := s.parsePeriod(bulan, tahun)
		if msg != "" {
			fail(c, http.StatusBadRequest, msg)
			return
		}

		rows, err := list(c.Request.Context(), year, month)
		if err != nil {
			s.storeError(c, operation, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"message":       fmt.Sprintf("Data %s for %s/%s retrieved successfully", label, bulan, tahun),
			"data":          rows,
			"total_records": len(rows),
		})
	}
}

// listHandler は条件なしの一覧ハンドラを組み立てる。
func listHandler[T any](s *Server, operation, label string, list func(ctx context.Context) ([]T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := list(c.Request.Context())
		if err != nil {
			s.storeError(c, operation, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"message":       fmt.Sprintf("Data %s retrieved successfully", label),
			"data":          rows,
			"total_records": len(rows),
		})
	}
}

// parsePeriod は bulan・tahun を検証する。不正な場合は400のメッセージを返す。
// 年の上限はアプリケーションのタイムゾーンでの今年。
func (s *Server) parsePeriod(bulan, tahun string) (month, year int, msg string) {
	if bulan == "" || bulan == "0" || tahun == "" || tahun == "0" {
		return 0, 0, "Parameter bulan and tahun are required"
	}

	month, err := strconv.Atoi(bulan)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, "Invalid month. Must be between 1-12"
	}

	year, err = strconv.Atoi(tahun)
	if err != nil || year < minYear || year > s.codec.Now().In(s.loc).Year() {
		return 0, 0, "Invalid year"
	}
	return month, year, ""
}

// storeError はデータベースエラーを記録して500を返す。
func (s *Server) storeError(c *gin.Context, operation string, err error) {
	metrics.StoreErrorsTotal.WithLabelValues(operation).Inc()
	s.logs.App.Error("データベースの問い合わせに失敗",
		zap.String("operation", operation),
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.Error(err))
	fail(c, http.StatusInternalServerError, "Error retrieving data: "+err.Error())
}
